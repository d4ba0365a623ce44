package inventory

import (
	"context"
	"sync"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id string) (Item, error)
	InsertItem(ctx context.Context, item Item) error
	SaveItem(ctx context.Context, item Item) error
}

// Repository keeps the item working set in memory, preserving registration order.
type Repository struct {
	mu    sync.RWMutex
	order []string
	items map[string]Item
}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[string]Item)}
}

type txRepo struct {
	base    *Repository
	staged  map[string]Item
	created []string
}

// WithTx runs fn against a staged view; changes are committed only when fn succeeds.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &txRepo{base: r, staged: make(map[string]Item)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.order = append(r.order, tx.created...)
	for id, item := range tx.staged {
		r.items[id] = item
	}
	return nil
}

// Get returns a single item.
func (r *Repository) Get(_ context.Context, id string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

// List returns every item in registration order.
func (r *Repository) List(_ context.Context) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Item, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out, nil
}

// Replace swaps the working set for the given items.
func (r *Repository) Replace(items []Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := make([]string, 0, len(items))
	index := make(map[string]Item, len(items))
	for _, item := range items {
		if _, dup := index[item.ID]; dup {
			return ErrDuplicateItem
		}
		order = append(order, item.ID)
		index[item.ID] = item
	}
	r.order = order
	r.items = index
	return nil
}

func (tx *txRepo) lookup(id string) (Item, bool) {
	if item, ok := tx.staged[id]; ok {
		return item, true
	}
	item, ok := tx.base.items[id]
	return item, ok
}

func (tx *txRepo) GetItemForUpdate(_ context.Context, id string) (Item, error) {
	item, ok := tx.lookup(id)
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *txRepo) InsertItem(_ context.Context, item Item) error {
	if _, ok := tx.lookup(item.ID); ok {
		return ErrDuplicateItem
	}
	tx.staged[item.ID] = item
	tx.created = append(tx.created, item.ID)
	return nil
}

func (tx *txRepo) SaveItem(_ context.Context, item Item) error {
	if _, ok := tx.lookup(item.ID); !ok {
		return ErrItemNotFound
	}
	tx.staged[item.ID] = item
	return nil
}
