package suppliers

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

var (
	// ErrSupplierNotFound indicates an unknown supplier id.
	ErrSupplierNotFound = fmt.Errorf("%w: suppliers: supplier", shared.ErrNotFound)
	// ErrNoSupplier indicates no registered supplier delivers the item.
	ErrNoSupplier = fmt.Errorf("%w: suppliers: no supplier for item", shared.ErrNotFound)
	// ErrDuplicateSupplier indicates the supplier id is already registered.
	ErrDuplicateSupplier = fmt.Errorf("%w: suppliers: supplier already exists", shared.ErrValidation)
)

var validate = validator.New()

func validateInput(in SupplierInput) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func (u SupplierUpdate) apply(sup Supplier) (Supplier, error) {
	if err := validate.Struct(u); err != nil {
		return Supplier{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return Supplier{}, fmt.Errorf("%w: supplier name is required", shared.ErrValidation)
		}
		sup.Name = name
	}
	if u.ContactPerson != nil {
		sup.ContactPerson = *u.ContactPerson
	}
	if u.Phone != nil {
		sup.Phone = *u.Phone
	}
	if u.Email != nil {
		sup.Email = *u.Email
	}
	if u.Address != nil {
		sup.Address = *u.Address
	}
	return sup, nil
}
