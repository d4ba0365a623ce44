package sales

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/sales/shared"
	errs "github.com/odyssey-erp/wholesale/internal/shared"
)

// ItemPort resolves item prices at sale time.
type ItemPort interface {
	Get(ctx context.Context, id string) (inventory.Item, error)
}

// StockPort issues stock for a sale. Issue must be all-or-nothing.
type StockPort interface {
	Issue(ctx context.Context, mv inventory.Movement) ([]inventory.StockChange, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log errs.AuditLog) error
}

// Repository keeps sales in memory in creation order.
type Repository struct {
	mu    sync.RWMutex
	order []string
	sales map[string]*Sale
}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{sales: make(map[string]*Sale)}
}

// WithInsert stores sale only when fn succeeds.
func (r *Repository) WithInsert(ctx context.Context, sale *Sale, fn func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sales[sale.id]; ok {
		return ErrDuplicateSale
	}
	if err := fn(ctx); err != nil {
		return err
	}
	r.order = append(r.order, sale.id)
	r.sales[sale.id] = sale
	return nil
}

func (r *Repository) get(id string) (*Sale, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sale, ok := r.sales[id]
	return sale, ok
}

func (r *Repository) list() []*Sale {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Sale, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sales[id])
	}
	return out
}

func (r *Repository) replace(list []*Sale) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = make([]string, 0, len(list))
	r.sales = make(map[string]*Sale, len(list))
	for _, sale := range list {
		r.order = append(r.order, sale.id)
		r.sales[sale.id] = sale
	}
}

// Service records sales and issues the sold stock.
type Service struct {
	repo  *Repository
	items ItemPort
	stock StockPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs Service.
func NewService(repo *Repository, items ItemPort, stock StockPort, audit AuditPort) *Service {
	return &Service{repo: repo, items: items, stock: stock, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

var validate = validator.New()

// LineInput describes a sold line. A nil UnitPrice sells at the item's unit price.
type LineInput struct {
	ItemID    string           `json:"item_id" validate:"required"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// CreateSaleInput describes a sale request.
type CreateSaleInput struct {
	Date           time.Time   `json:"date"`
	SalesManagerID string      `json:"-"`
	Notes          string      `json:"notes" validate:"max=1000"`
	Items          []LineInput `json:"items" validate:"dive"`
}

// Result bundles the created sale with the stock movements it caused.
type Result struct {
	Sale    *Sale
	Changes []inventory.StockChange
}

// CreateSale validates every line, then issues stock and stores the sale as
// one unit. Any insufficient line rejects the whole sale.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (Result, error) {
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return Result{}, ErrInvalidQuantity
		}
	}
	if err := validate.Struct(input); err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	draft := &Draft{}
	for _, line := range input.Items {
		item, err := s.buildItem(ctx, line)
		if err != nil {
			return Result{}, err
		}
		if err := draft.AddItem(item); err != nil {
			return Result{}, err
		}
	}
	now := s.now()
	sale, err := draft.Finalize(errs.NewDocumentNumber("SO"), input.Date, input.SalesManagerID, input.Notes, now)
	if err != nil {
		return Result{}, err
	}
	var changes []inventory.StockChange
	err = s.repo.WithInsert(ctx, sale, func(ctx context.Context) error {
		lines := make([]inventory.StockLine, 0, len(sale.items))
		for _, item := range sale.items {
			lines = append(lines, inventory.StockLine{ItemID: item.ItemID, Quantity: item.Quantity})
		}
		var err error
		changes, err = s.stock.Issue(ctx, inventory.Movement{
			Lines:     lines,
			RefModule: "sales",
			RefID:     sale.id,
			Note:      sale.notes,
			ActorID:   sale.salesManagerID,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	totals := sale.Totals()
	if s.audit != nil {
		_ = s.audit.Record(ctx, errs.AuditLog{
			ActorID:  sale.salesManagerID,
			Action:   "SALE_CREATE",
			Entity:   "sale",
			EntityID: sale.id,
			Meta: map[string]any{
				"total_amount": totals.TotalAmount.String(),
				"profit":       totals.Profit.String(),
			},
		})
	}
	return Result{Sale: sale, Changes: changes}, nil
}

// Get returns one sale.
func (s *Service) Get(_ context.Context, id string) (*Sale, error) {
	sale, ok := s.repo.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSaleNotFound, id)
	}
	return sale, nil
}

// List returns every sale in creation order.
func (s *Service) List(_ context.Context) []*Sale {
	return s.repo.list()
}

// Load replaces the sales with a persisted snapshot.
func (s *Service) Load(snaps []SaleSnapshot) error {
	restored := make([]*Sale, 0, len(snaps))
	seen := make(map[string]bool, len(snaps))
	for _, snap := range snaps {
		if seen[snap.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateSale, snap.ID)
		}
		seen[snap.ID] = true
		sale, err := RestoreSale(snap)
		if err != nil {
			return err
		}
		restored = append(restored, sale)
	}
	s.repo.replace(restored)
	return nil
}

// Snapshot returns every sale for persistence.
func (s *Service) Snapshot(_ context.Context) []SaleSnapshot {
	list := s.repo.list()
	out := make([]SaleSnapshot, 0, len(list))
	for _, sale := range list {
		out = append(out, sale.Snapshot())
	}
	return out
}

func (s *Service) buildItem(ctx context.Context, line LineInput) (SaleItem, error) {
	stocked, err := s.items.Get(ctx, line.ItemID)
	if errors.Is(err, inventory.ErrItemNotFound) {
		return SaleItem{}, fmt.Errorf("%w: %s", ErrUnknownItem, line.ItemID)
	}
	if err != nil {
		return SaleItem{}, err
	}
	price := stocked.UnitPrice
	if line.UnitPrice != nil {
		price = *line.UnitPrice
	}
	_, cost := shared.CalculateLineTotals(line.Quantity, price, stocked.UnitPrice)
	return SaleItem{
		ItemID:          line.ItemID,
		Quantity:        line.Quantity,
		UnitPrice:       price,
		CostPriceAtSale: cost,
	}, nil
}
