package suppliers

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

// ErrItemNotLinked indicates the supplier is not associated with the item.
var ErrItemNotLinked = fmt.Errorf("%w: item not linked", ErrSupplierNotFound)

// Catalog keeps suppliers in registration order and resolves item sources.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Supplier
	now   func() time.Time
}

// NewCatalog constructs an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[string]Supplier), now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, used by tests.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// Register appends a supplier to the catalog.
func (c *Catalog) Register(_ context.Context, in SupplierInput) (Supplier, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return Supplier{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[in.ID]; ok {
		return Supplier{}, fmt.Errorf("%w: %s", ErrDuplicateSupplier, in.ID)
	}
	now := c.now()
	sup := Supplier{
		ID:            in.ID,
		Name:          in.Name,
		ContactPerson: in.ContactPerson,
		Phone:         in.Phone,
		Email:         in.Email,
		Address:       in.Address,
		ItemIDs:       []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	c.order = append(c.order, sup.ID)
	c.byID[sup.ID] = sup
	return sup.clone(), nil
}

// Get returns a copy of one supplier.
func (c *Catalog) Get(_ context.Context, id string) (Supplier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sup, ok := c.byID[id]
	if !ok {
		return Supplier{}, fmt.Errorf("%w: %s", ErrSupplierNotFound, id)
	}
	return sup.clone(), nil
}

// List returns copies of every supplier in registration order.
func (c *Catalog) List(_ context.Context) []Supplier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Supplier, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].clone())
	}
	return out
}

// Update changes contact details. Registration order never changes.
func (c *Catalog) Update(_ context.Context, id string, update SupplierUpdate) (Supplier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sup, ok := c.byID[id]
	if !ok {
		return Supplier{}, fmt.Errorf("%w: %s", ErrSupplierNotFound, id)
	}
	next, err := update.apply(sup)
	if err != nil {
		return Supplier{}, err
	}
	next.UpdatedAt = c.now()
	c.byID[id] = next
	return next.clone(), nil
}

// AddItem associates itemID with the supplier. Adding an existing link is a no-op.
func (c *Catalog) AddItem(_ context.Context, supplierID, itemID string) (Supplier, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Supplier{}, fmt.Errorf("%w: suppliers: item id required", shared.ErrValidation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sup, ok := c.byID[supplierID]
	if !ok {
		return Supplier{}, fmt.Errorf("%w: %s", ErrSupplierNotFound, supplierID)
	}
	if !sup.Supplies(itemID) {
		sup.ItemIDs = append(slices.Clone(sup.ItemIDs), itemID)
		sup.UpdatedAt = c.now()
		c.byID[supplierID] = sup
	}
	return sup.clone(), nil
}

// RemoveItem drops the association between the supplier and itemID.
func (c *Catalog) RemoveItem(_ context.Context, supplierID, itemID string) (Supplier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sup, ok := c.byID[supplierID]
	if !ok {
		return Supplier{}, fmt.Errorf("%w: %s", ErrSupplierNotFound, supplierID)
	}
	idx := slices.Index(sup.ItemIDs, itemID)
	if idx < 0 {
		return Supplier{}, fmt.Errorf("%w: %s does not supply %s", ErrItemNotLinked, supplierID, itemID)
	}
	sup.ItemIDs = slices.Delete(slices.Clone(sup.ItemIDs), idx, idx+1)
	sup.UpdatedAt = c.now()
	c.byID[supplierID] = sup
	return sup.clone(), nil
}

// FindSuppliersForItem returns every supplier of itemID in registration order.
func (c *Catalog) FindSuppliersForItem(_ context.Context, itemID string) []Supplier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Supplier, 0)
	for _, id := range c.order {
		if sup := c.byID[id]; sup.Supplies(itemID) {
			out = append(out, sup.clone())
		}
	}
	return out
}

// GetPrimarySupplier returns the first-registered supplier of itemID.
func (c *Catalog) GetPrimarySupplier(ctx context.Context, itemID string) (Supplier, error) {
	found := c.FindSuppliersForItem(ctx, itemID)
	if len(found) == 0 {
		return Supplier{}, fmt.Errorf("%w: %s", ErrNoSupplier, itemID)
	}
	return found[0], nil
}

// Load replaces the catalog with a persisted snapshot, keeping its order.
func (c *Catalog) Load(list []Supplier) error {
	order := make([]string, 0, len(list))
	byID := make(map[string]Supplier, len(list))
	for _, sup := range list {
		if _, dup := byID[sup.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSupplier, sup.ID)
		}
		order = append(order, sup.ID)
		byID[sup.ID] = sup.clone()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = order
	c.byID = byID
	return nil
}

// Snapshot returns copies of every supplier for persistence.
func (c *Catalog) Snapshot(ctx context.Context) []Supplier {
	return c.List(ctx)
}
