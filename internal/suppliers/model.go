package suppliers

import (
	"slices"
	"time"
)

// Supplier represents a supplier entity and the items it can deliver.
type Supplier struct {
	ID            string    `json:"supplier_id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	Address       string    `json:"address,omitempty"`
	ItemIDs       []string  `json:"item_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Supplies reports whether the supplier is associated with itemID.
func (s Supplier) Supplies(itemID string) bool {
	return slices.Contains(s.ItemIDs, itemID)
}

func (s Supplier) clone() Supplier {
	s.ItemIDs = slices.Clone(s.ItemIDs)
	if s.ItemIDs == nil {
		s.ItemIDs = []string{}
	}
	return s
}

// SupplierInput captures registration fields.
type SupplierInput struct {
	ID            string `json:"supplier_id" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=200"`
	ContactPerson string `json:"contact_person" validate:"max=200"`
	Phone         string `json:"phone" validate:"max=50"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address" validate:"max=500"`
}

// SupplierUpdate carries optional contact changes.
type SupplierUpdate struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=200"`
	ContactPerson *string `json:"contact_person,omitempty" validate:"omitempty,max=200"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=500"`
}
