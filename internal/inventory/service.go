package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (Item, error)
	List(ctx context.Context) ([]Item, error)
	Replace(items []Item) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates item registration and stock movements.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create registers a new item.
func (s *Service) Create(ctx context.Context, actorID string, input ItemInput) (Item, error) {
	item, err := NewItem(input, s.now())
	if err != nil {
		return Item{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, actorID, "inventory:item.create", item.ID, map[string]any{
		"name":          item.Name,
		"current_stock": item.CurrentStock,
	})
	return item, nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	return s.repo.Get(ctx, strings.TrimSpace(id))
}

// List returns every item, including inactive ones, in registration order.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}

// ListByStatus returns active items whose derived status equals status.
func (s *Service) ListByStatus(ctx context.Context, status StockStatus) ([]Item, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0)
	for _, item := range items {
		if item.Active && item.Status() == status {
			out = append(out, item)
		}
	}
	return out, nil
}

// Update changes descriptive fields and thresholds. Stock is never touched here.
func (s *Service) Update(ctx context.Context, actorID, id string, update ItemUpdate) (Item, StockChange, error) {
	var (
		updated Item
		change  StockChange
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := update.apply(current)
		if err != nil {
			return err
		}
		next.LastUpdated = s.now()
		updated = next
		change = StockChange{
			ItemID:         id,
			Before:         current.CurrentStock,
			After:          next.CurrentStock,
			PreviousStatus: current.Status(),
			Status:         next.Status(),
		}
		return tx.SaveItem(ctx, next)
	})
	if err != nil {
		return Item{}, StockChange{}, err
	}
	s.record(ctx, actorID, "inventory:item.update", id, nil)
	return updated, change, nil
}

// Deactivate retires an item. Items are never deleted.
func (s *Service) Deactivate(ctx context.Context, actorID, id string) (Item, error) {
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.Active = false
		current.LastUpdated = s.now()
		item = current
		return tx.SaveItem(ctx, current)
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, actorID, "inventory:item.deactivate", id, nil)
	return item, nil
}

// Receive increments stock for every line.
func (s *Service) Receive(ctx context.Context, mv Movement) ([]StockChange, error) {
	mv.Type = MovementReceipt
	return s.postMovement(ctx, mv, 1)
}

// Issue decrements stock for every line. Either every line is applied or none is.
func (s *Service) Issue(ctx context.Context, mv Movement) ([]StockChange, error) {
	mv.Type = MovementIssue
	return s.postMovement(ctx, mv, -1)
}

// Adjust applies a signed manual correction to a single item.
func (s *Service) Adjust(ctx context.Context, actorID, itemID string, delta int, note string) (StockChange, error) {
	if delta == 0 {
		return StockChange{}, ErrInvalidQuantity
	}
	var change StockChange
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return ErrInactiveItem
		}
		if delta > 0 && delta > math.MaxInt-item.CurrentStock {
			return fmt.Errorf("%w: item %s: adjustment overflows stock", ErrInvalidQuantity, itemID)
		}
		next := item.CurrentStock + delta
		if next < 0 {
			return fmt.Errorf("%w: item %s would reach %d", ErrNegativeStock, itemID, next)
		}
		change = s.apply(&item, next)
		return tx.SaveItem(ctx, item)
	})
	if err != nil {
		return StockChange{}, err
	}
	s.record(ctx, actorID, fmt.Sprintf("inventory:%s", MovementAdjust), itemID, map[string]any{
		"delta": delta,
		"note":  note,
		"after": change.After,
	})
	return change, nil
}

// Load replaces the working set with a persisted snapshot.
func (s *Service) Load(items []Item) error {
	for _, item := range items {
		if item.MinimumStock > item.MaximumStock {
			return fmt.Errorf("%w: item %s", ErrInvalidThresholds, item.ID)
		}
		if item.CurrentStock < 0 {
			return fmt.Errorf("%w: item %s", ErrNegativeStock, item.ID)
		}
	}
	return s.repo.Replace(items)
}

// Snapshot returns the working set for persistence.
func (s *Service) Snapshot(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}

// aggregate folds duplicate item lines, keeping first-appearance order.
func aggregate(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInvalidQuantity)
	}
	index := make(map[string]int, len(lines))
	out := make([]StockLine, 0, len(lines))
	for _, line := range lines {
		if err := validate.Struct(line); err != nil {
			return nil, fmt.Errorf("%w: item %q: %v", ErrInvalidQuantity, line.ItemID, err)
		}
		if pos, ok := index[line.ItemID]; ok {
			if line.Quantity > math.MaxInt-out[pos].Quantity {
				return nil, fmt.Errorf("%w: item %q: combined quantity overflows", ErrInvalidQuantity, line.ItemID)
			}
			out[pos].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

func (s *Service) postMovement(ctx context.Context, mv Movement, sign int) ([]StockChange, error) {
	lines, err := aggregate(mv.Lines)
	if err != nil {
		return nil, err
	}
	var changes []StockChange
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		changes = make([]StockChange, 0, len(lines))
		for _, line := range lines {
			item, err := tx.GetItemForUpdate(ctx, line.ItemID)
			if err != nil {
				return fmt.Errorf("%w: %s", err, line.ItemID)
			}
			if !item.Active {
				return fmt.Errorf("%w: %s", ErrInactiveItem, item.ID)
			}
			if sign < 0 && line.Quantity > item.CurrentStock {
				return &InsufficientStockError{ItemID: item.ID, Requested: line.Quantity, Available: item.CurrentStock}
			}
			if sign > 0 && line.Quantity > math.MaxInt-item.CurrentStock {
				return fmt.Errorf("%w: item %s: receipt of %d overflows stock", ErrInvalidQuantity, item.ID, line.Quantity)
			}
			changes = append(changes, s.apply(&item, item.CurrentStock+sign*line.Quantity))
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	meta := map[string]any{
		"ref_module": mv.RefModule,
		"ref_id":     mv.RefID,
		"lines":      len(lines),
	}
	if mv.Note != "" {
		meta["note"] = mv.Note
	}
	s.record(ctx, mv.ActorID, fmt.Sprintf("inventory:%s", mv.Type), mv.RefID, meta)
	return changes, nil
}

func (s *Service) apply(item *Item, next int) StockChange {
	change := StockChange{
		ItemID:         item.ID,
		Before:         item.CurrentStock,
		PreviousStatus: item.Status(),
	}
	item.CurrentStock = next
	item.LastUpdated = s.now()
	change.After = next
	change.Status = item.Status()
	return change
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: entityID,
		Meta:     meta,
	})
}
