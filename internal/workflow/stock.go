package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/rbac"
)

// RegisterItem adds an item. A named supplier must exist and is linked to the item.
func (s *Service) RegisterItem(ctx context.Context, p rbac.Principal, input inventory.ItemInput) (inventory.Item, error) {
	if err := rbac.Authorize(p, rbac.CapManageItems); err != nil {
		return inventory.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	input.SupplierID = strings.TrimSpace(input.SupplierID)
	if input.SupplierID != "" {
		if _, err := s.catalog.Get(ctx, input.SupplierID); err != nil {
			return inventory.Item{}, err
		}
	}
	item, err := s.items.Create(ctx, p.UserID, input)
	if err != nil {
		return inventory.Item{}, err
	}
	s.linkSupplier(ctx, item.SupplierID, item.ID)
	s.evaluate(ctx, []inventory.StockChange{{
		ItemID: item.ID,
		After:  item.CurrentStock,
		Status: item.Status(),
	}})
	s.commit(ctx, "item", "register")
	return item, nil
}

// UpdateItem changes descriptive fields and thresholds. A threshold change
// that moves the item into LOW raises an alert like any stock movement.
func (s *Service) UpdateItem(ctx context.Context, p rbac.Principal, id string, update inventory.ItemUpdate) (inventory.Item, error) {
	if err := rbac.Authorize(p, rbac.CapManageItems); err != nil {
		return inventory.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.SupplierID != nil && strings.TrimSpace(*update.SupplierID) != "" {
		if _, err := s.catalog.Get(ctx, strings.TrimSpace(*update.SupplierID)); err != nil {
			return inventory.Item{}, err
		}
	}
	item, change, err := s.items.Update(ctx, p.UserID, id, update)
	if err != nil {
		return inventory.Item{}, err
	}
	s.linkSupplier(ctx, item.SupplierID, item.ID)
	s.evaluate(ctx, []inventory.StockChange{change})
	s.commit(ctx, "item", "update")
	return item, nil
}

// DeactivateItem retires an item; it can no longer be sold or adjusted.
func (s *Service) DeactivateItem(ctx context.Context, p rbac.Principal, id string) (inventory.Item, error) {
	if err := rbac.Authorize(p, rbac.CapManageItems); err != nil {
		return inventory.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.items.Deactivate(ctx, p.UserID, id)
	if err != nil {
		return inventory.Item{}, err
	}
	s.commit(ctx, "item", "deactivate")
	return item, nil
}

// AdjustStock applies a signed manual correction.
func (s *Service) AdjustStock(ctx context.Context, p rbac.Principal, itemID string, delta int, note string) (inventory.StockChange, error) {
	if err := rbac.Authorize(p, rbac.CapAdjustStock); err != nil {
		return inventory.StockChange{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.items.Adjust(ctx, p.UserID, itemID, delta, note)
	if err != nil {
		return inventory.StockChange{}, err
	}
	s.evaluate(ctx, []inventory.StockChange{change})
	s.commit(ctx, "stock", "adjust")
	return change, nil
}

// StockCheck is the outcome of checking one item. ReorderQuantity tops an
// alerting item up to its maximum.
type StockCheck struct {
	Item            inventory.Item        `json:"item"`
	Status          inventory.StockStatus `json:"status"`
	ReorderQuantity int                   `json:"reorder_quantity"`
	PrimarySupplier string                `json:"primary_supplier_id,omitempty"`
	SupplierOptions int                   `json:"supplier_options"`
}

// CheckStock classifies one item. It never notifies.
func (s *Service) CheckStock(ctx context.Context, p rbac.Principal, itemID string) (StockCheck, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return StockCheck{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return StockCheck{}, err
	}
	check := StockCheck{Item: item, Status: item.Status()}
	if inventory.IsAlerting(check.Status) {
		check.ReorderQuantity = max(item.MaximumStock-item.CurrentStock, item.MinimumStock-item.CurrentStock, 0)
	}
	options := s.catalog.FindSuppliersForItem(ctx, item.ID)
	check.SupplierOptions = len(options)
	if len(options) > 0 {
		check.PrimarySupplier = options[0].ID
	}
	return check, nil
}

// StockReport groups active items by stock status.
type StockReport struct {
	GeneratedAt    time.Time                                  `json:"generated_at"`
	Counts         map[inventory.StockStatus]int              `json:"counts"`
	Items          map[inventory.StockStatus][]inventory.Item `json:"items"`
	InventoryValue decimal.Decimal                            `json:"inventory_value"`
}

// StockReport builds the status report over active items.
func (s *Service) StockReport(ctx context.Context, p rbac.Principal) (StockReport, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return StockReport{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	report := StockReport{
		GeneratedAt:    s.now(),
		Counts:         make(map[inventory.StockStatus]int),
		Items:          make(map[inventory.StockStatus][]inventory.Item),
		InventoryValue: decimal.Zero,
	}
	for _, status := range []inventory.StockStatus{
		inventory.StatusOutOfStock, inventory.StatusLow, inventory.StatusNormal, inventory.StatusOverstock,
	} {
		items, err := s.items.ListByStatus(ctx, status)
		if err != nil {
			return StockReport{}, err
		}
		report.Counts[status] = len(items)
		report.Items[status] = items
		for _, item := range items {
			report.InventoryValue = report.InventoryValue.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.CurrentStock))))
		}
	}
	return report, nil
}

// ScanResult summarises a stock scan.
type ScanResult struct {
	Counts  map[inventory.StockStatus]int `json:"counts"`
	Alerted []inventory.Item              `json:"alerted"`
}

// ScanStock re-observes every active item and alerts those whose status moved
// into LOW or OUT_OF_STOCK since the last observation. It runs as the system.
func (s *Service) ScanStock(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.items.List(ctx)
	if err != nil {
		return ScanResult{}, err
	}
	result := ScanResult{Counts: make(map[inventory.StockStatus]int)}
	for _, item := range items {
		if item.Active {
			result.Counts[item.Status()]++
		}
	}
	result.Alerted, err = s.alerter.Scan(ctx, items)
	if err != nil {
		s.logger.WarnContext(ctx, "stock scan", slog.Any("error", err))
	}
	if len(result.Alerted) > 0 {
		s.commit(ctx, "stock", "scan")
	}
	return result, nil
}

func (s *Service) linkSupplier(ctx context.Context, supplierID, itemID string) {
	if supplierID == "" {
		return
	}
	if _, err := s.catalog.AddItem(ctx, supplierID, itemID); err != nil {
		s.logger.WarnContext(ctx, "link supplier item",
			slog.String("supplier_id", supplierID),
			slog.String("item_id", itemID),
			slog.Any("error", err),
		)
	}
}
