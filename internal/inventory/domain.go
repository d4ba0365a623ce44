package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

// StockStatus classifies an item's quantity against its thresholds.
type StockStatus string

const (
	StatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StatusLow        StockStatus = "LOW"
	StatusNormal     StockStatus = "NORMAL"
	StatusOverstock  StockStatus = "OVERSTOCK"
)

// Classify evaluates the thresholds in order; the first match wins.
func Classify(current, minimum, maximum int) StockStatus {
	switch {
	case current == 0:
		return StatusOutOfStock
	case current < minimum:
		return StatusLow
	case current > maximum:
		return StatusOverstock
	default:
		return StatusNormal
	}
}

// IsAlerting reports whether the status should raise a replenishment alert.
func IsAlerting(status StockStatus) bool {
	return status == StatusLow || status == StatusOutOfStock
}

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceipt represents goods received against a purchase order.
	MovementReceipt MovementType = "RECEIPT"
	// MovementIssue represents goods leaving through a sale.
	MovementIssue MovementType = "ISSUE"
	// MovementAdjust indicates manual adjustments.
	MovementAdjust MovementType = "ADJUST"
)

// Item is a stocked article.
type Item struct {
	ID           string          `json:"item_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Category     string          `json:"category,omitempty"`
	SupplierID   string          `json:"supplier_id,omitempty"`
	CurrentStock int             `json:"current_stock"`
	MinimumStock int             `json:"minimum_stock"`
	MaximumStock int             `json:"maximum_stock"`
	Active       bool            `json:"active"`
	DateAdded    time.Time       `json:"date_added"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// Status derives the stock status from the current thresholds.
func (i Item) Status() StockStatus {
	return Classify(i.CurrentStock, i.MinimumStock, i.MaximumStock)
}

// ItemInput captures the fields required to register an item.
type ItemInput struct {
	ID           string          `json:"item_id" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Category     string          `json:"category" validate:"max=100"`
	SupplierID   string          `json:"supplier_id" validate:"max=64"`
	CurrentStock int             `json:"current_stock" validate:"gte=0"`
	MinimumStock int             `json:"minimum_stock" validate:"gte=0"`
	MaximumStock int             `json:"maximum_stock" validate:"gte=0"`
}

// ItemUpdate carries optional changes to an item's descriptive fields and thresholds.
type ItemUpdate struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Description  *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	Category     *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	SupplierID   *string          `json:"supplier_id,omitempty" validate:"omitempty,max=64"`
	MinimumStock *int             `json:"minimum_stock,omitempty" validate:"omitempty,gte=0"`
	MaximumStock *int             `json:"maximum_stock,omitempty" validate:"omitempty,gte=0"`
}

// StockLine requests a quantity movement for one item.
type StockLine struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// StockChange reports the effect of a movement on one item.
type StockChange struct {
	ItemID         string      `json:"item_id"`
	Before         int         `json:"before"`
	After          int         `json:"after"`
	PreviousStatus StockStatus `json:"previous_status"`
	Status         StockStatus `json:"status"`
}

// Movement describes a stock movement request.
type Movement struct {
	Type      MovementType
	Lines     []StockLine
	RefModule string
	RefID     string
	Note      string
	ActorID   string
}

var (
	// ErrItemNotFound indicates an unknown item id.
	ErrItemNotFound = fmt.Errorf("%w: inventory: item", shared.ErrNotFound)
	// ErrDuplicateItem indicates the item id is already registered.
	ErrDuplicateItem = fmt.Errorf("%w: inventory: item already exists", shared.ErrValidation)
	// ErrInvalidThresholds indicates minimum stock above maximum stock.
	ErrInvalidThresholds = fmt.Errorf("%w: inventory: minimum stock must not exceed maximum stock", shared.ErrValidation)
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be positive", shared.ErrValidation)
	// ErrInvalidUnitPrice indicates a negative price.
	ErrInvalidUnitPrice = fmt.Errorf("%w: inventory: unit price must be >= 0", shared.ErrValidation)
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = fmt.Errorf("%w: inventory: negative stock not allowed", shared.ErrConsistency)
	// ErrInsufficientStock indicates an issue larger than the available quantity.
	ErrInsufficientStock = fmt.Errorf("%w: inventory: insufficient stock", shared.ErrConsistency)
	// ErrInactiveItem indicates a movement against a deactivated item.
	ErrInactiveItem = fmt.Errorf("%w: inventory: item is inactive", shared.ErrConsistency)
)

// InsufficientStockError carries the failing line of an issue.
type InsufficientStockError struct {
	ItemID    string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: item %s requested %d available %d", ErrInsufficientStock, e.ItemID, e.Requested, e.Available)
}

// Unwrap exposes ErrInsufficientStock to errors.Is.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// AsInsufficientStock extracts the failing line from err.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

var validate = validator.New()

// NewItem validates input and builds an active item stamped with now.
func NewItem(input ItemInput, now time.Time) (Item, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	if err := validate.Struct(input); err != nil {
		return Item{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if input.UnitPrice.IsNegative() {
		return Item{}, ErrInvalidUnitPrice
	}
	if input.MinimumStock > input.MaximumStock {
		return Item{}, ErrInvalidThresholds
	}
	return Item{
		ID:           input.ID,
		Name:         input.Name,
		Description:  input.Description,
		UnitPrice:    input.UnitPrice,
		Category:     input.Category,
		SupplierID:   strings.TrimSpace(input.SupplierID),
		CurrentStock: input.CurrentStock,
		MinimumStock: input.MinimumStock,
		MaximumStock: input.MaximumStock,
		Active:       true,
		DateAdded:    now,
		LastUpdated:  now,
	}, nil
}

// apply merges the update into item and re-validates the result.
func (u ItemUpdate) apply(item Item) (Item, error) {
	if err := validate.Struct(u); err != nil {
		return Item{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return Item{}, fmt.Errorf("%w: inventory: name required", shared.ErrValidation)
		}
		item.Name = name
	}
	if u.Description != nil {
		item.Description = *u.Description
	}
	if u.UnitPrice != nil {
		if u.UnitPrice.IsNegative() {
			return Item{}, ErrInvalidUnitPrice
		}
		item.UnitPrice = *u.UnitPrice
	}
	if u.Category != nil {
		item.Category = *u.Category
	}
	if u.SupplierID != nil {
		item.SupplierID = strings.TrimSpace(*u.SupplierID)
	}
	if u.MinimumStock != nil {
		item.MinimumStock = *u.MinimumStock
	}
	if u.MaximumStock != nil {
		item.MaximumStock = *u.MaximumStock
	}
	if item.MinimumStock > item.MaximumStock {
		return Item{}, ErrInvalidThresholds
	}
	return item, nil
}
