package sales

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wholesale/internal/sales/shared"
	errs "github.com/odyssey-erp/wholesale/internal/shared"
)

// SaleItem is a sold line. CostPriceAtSale is the line cost snapshotted at
// sale time: quantity × the item's unit price.
type SaleItem struct {
	ItemID          string          `json:"item_id"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	CostPriceAtSale decimal.Decimal `json:"cost_price_at_sale"`
}

// Subtotal returns quantity × unit price.
func (i SaleItem) Subtotal() decimal.Decimal {
	subtotal, _ := shared.CalculateLineTotals(i.Quantity, i.UnitPrice, decimal.Zero)
	return subtotal
}

// Totals holds the derived monetary figures of a sale.
type Totals struct {
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalCostPrice decimal.Decimal `json:"total_cost_price"`
	Profit         decimal.Decimal `json:"profit"`
	ProfitRatio    decimal.Decimal `json:"profit_ratio"`
}

// ComputeTotals derives totals from the lines.
func ComputeTotals(items []SaleItem) Totals {
	amount := decimal.Zero
	cost := decimal.Zero
	for _, item := range items {
		amount = amount.Add(item.Subtotal())
		cost = cost.Add(item.CostPriceAtSale)
	}
	profit := amount.Sub(cost)
	return Totals{
		TotalAmount:    amount,
		TotalCostPrice: cost,
		Profit:         profit,
		ProfitRatio:    shared.CalculateProfitRatio(profit, cost),
	}
}

var (
	// ErrEmptySale indicates a sale without lines.
	ErrEmptySale = fmt.Errorf("%w: sales: sale has no items", errs.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: sales: quantity must be positive", errs.ErrValidation)
	// ErrInvalidPrice indicates a negative unit price or cost.
	ErrInvalidPrice = fmt.Errorf("%w: sales: price must be >= 0", errs.ErrValidation)
	// ErrItemIndex indicates a line index outside the draft.
	ErrItemIndex = fmt.Errorf("%w: sales: item index out of range", errs.ErrValidation)
	// ErrSalesManagerRequired indicates a sale without a sales manager id.
	ErrSalesManagerRequired = fmt.Errorf("%w: sales: sales manager id required", errs.ErrValidation)
	// ErrSaleNotFound indicates an unknown sale id.
	ErrSaleNotFound = fmt.Errorf("%w: sales: sale", errs.ErrNotFound)
	// ErrUnknownItem indicates a line referencing an item that does not exist.
	ErrUnknownItem = fmt.Errorf("%w: sales: unknown item", errs.ErrConsistency)
	// ErrDuplicateSale indicates a sale id collision.
	ErrDuplicateSale = fmt.Errorf("%w: sales: sale already exists", errs.ErrValidation)
)

func checkItem(item SaleItem) error {
	if strings.TrimSpace(item.ItemID) == "" {
		return fmt.Errorf("%w: item id required", errs.ErrValidation)
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.UnitPrice.IsNegative() || item.CostPriceAtSale.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

// Draft collects sale lines before the sale is finalised.
type Draft struct {
	items []SaleItem
}

// AddItem appends a validated line.
func (d *Draft) AddItem(item SaleItem) error {
	if err := checkItem(item); err != nil {
		return err
	}
	d.items = append(d.items, item)
	return nil
}

// RemoveItem drops the line at index.
func (d *Draft) RemoveItem(index int) (SaleItem, error) {
	if index < 0 || index >= len(d.items) {
		return SaleItem{}, fmt.Errorf("%w: %d of %d", ErrItemIndex, index, len(d.items))
	}
	removed := d.items[index]
	next := make([]SaleItem, 0, len(d.items)-1)
	next = append(next, d.items[:index]...)
	d.items = append(next, d.items[index+1:]...)
	return removed, nil
}

// Items returns a copy of the draft lines.
func (d *Draft) Items() []SaleItem {
	return append([]SaleItem(nil), d.items...)
}

// Totals derives the running totals of the draft.
func (d *Draft) Totals() Totals {
	return ComputeTotals(d.items)
}

// Sale is an immutable, finalised sale.
type Sale struct {
	id             string
	date           time.Time
	salesManagerID string
	notes          string
	items          []SaleItem
	createdAt      time.Time
}

// Finalize freezes the draft into a sale.
func (d *Draft) Finalize(id string, date time.Time, salesManagerID, notes string, now time.Time) (*Sale, error) {
	if strings.TrimSpace(salesManagerID) == "" {
		return nil, ErrSalesManagerRequired
	}
	if len(d.items) == 0 {
		return nil, ErrEmptySale
	}
	if date.IsZero() {
		date = now
	}
	return &Sale{
		id:             id,
		date:           date,
		salesManagerID: salesManagerID,
		notes:          notes,
		items:          d.Items(),
		createdAt:      now,
	}, nil
}

func (s *Sale) ID() string             { return s.id }
func (s *Sale) Date() time.Time        { return s.date }
func (s *Sale) SalesManagerID() string { return s.salesManagerID }
func (s *Sale) Notes() string          { return s.notes }

// Items returns a copy of the sold lines.
func (s *Sale) Items() []SaleItem {
	return append([]SaleItem(nil), s.items...)
}

// Totals derives amount, cost, profit and ratio from the lines.
func (s *Sale) Totals() Totals {
	return ComputeTotals(s.items)
}

// SaleSnapshot is the persisted and wire form of a sale.
type SaleSnapshot struct {
	ID             string     `json:"sale_id"`
	Date           time.Time  `json:"date"`
	SalesManagerID string     `json:"sales_manager_id"`
	Notes          string     `json:"notes,omitempty"`
	Items          []SaleItem `json:"items"`
	CreatedAt      time.Time  `json:"created_at"`
	Totals
}

// Snapshot copies the sale into its persisted form.
func (s *Sale) Snapshot() SaleSnapshot {
	return SaleSnapshot{
		ID:             s.id,
		Date:           s.date,
		SalesManagerID: s.salesManagerID,
		Notes:          s.notes,
		Items:          s.Items(),
		CreatedAt:      s.createdAt,
		Totals:         s.Totals(),
	}
}

// MarshalJSON renders the sale through its snapshot.
func (s *Sale) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// RestoreSale rebuilds a sale from a snapshot; stored totals are recomputed.
func RestoreSale(snap SaleSnapshot) (*Sale, error) {
	if len(snap.Items) == 0 {
		return nil, fmt.Errorf("%w: sale %s", ErrEmptySale, snap.ID)
	}
	for _, item := range snap.Items {
		if err := checkItem(item); err != nil {
			return nil, fmt.Errorf("sale %s: %w", snap.ID, err)
		}
	}
	return &Sale{
		id:             snap.ID,
		date:           snap.Date,
		salesManagerID: snap.SalesManagerID,
		notes:          snap.Notes,
		items:          append([]SaleItem(nil), snap.Items...),
		createdAt:      snap.CreatedAt,
	}, nil
}
