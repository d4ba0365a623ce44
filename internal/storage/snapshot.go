// Package storage persists the engine's working set as whole-collection snapshots.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/notify"
	"github.com/odyssey-erp/wholesale/internal/procurement"
	"github.com/odyssey-erp/wholesale/internal/sales"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

// Collection names a persisted entity collection.
type Collection string

const (
	CollectionItems        Collection = "items"
	CollectionSuppliers    Collection = "suppliers"
	CollectionRequisitions Collection = "requisitions"
	CollectionOrders       Collection = "orders"
	CollectionSales        Collection = "sales"
	CollectionMessages     Collection = "messages"
)

// Collections lists every collection in load order.
func Collections() []Collection {
	return []Collection{
		CollectionItems,
		CollectionSuppliers,
		CollectionRequisitions,
		CollectionOrders,
		CollectionSales,
		CollectionMessages,
	}
}

// Snapshot is the complete working set of the engine.
type Snapshot struct {
	Items        []inventory.Item                  `json:"items"`
	Suppliers    []suppliers.Supplier              `json:"suppliers"`
	Requisitions []procurement.PurchaseRequisition `json:"requisitions"`
	Orders       []procurement.OrderSnapshot       `json:"orders"`
	Sales        []sales.SaleSnapshot              `json:"sales"`
	Messages     []notify.Message                  `json:"messages"`
}

// Record is one encoded entity keyed by its id.
type Record struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Store loads and saves snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

func encodeAll[T any](list []T, id func(T) string) ([]Record, error) {
	out := make([]Record, 0, len(list))
	for _, v := range list {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("storage: encode %s: %w", id(v), err)
		}
		out = append(out, Record{ID: id(v), Payload: raw})
	}
	return out, nil
}

func decodeAll[T any](records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode splits the snapshot into ordered records per collection.
func (s Snapshot) Encode() (map[Collection][]Record, error) {
	out := make(map[Collection][]Record, 6)
	var err error
	if out[CollectionItems], err = encodeAll(s.Items, func(v inventory.Item) string { return v.ID }); err != nil {
		return nil, err
	}
	if out[CollectionSuppliers], err = encodeAll(s.Suppliers, func(v suppliers.Supplier) string { return v.ID }); err != nil {
		return nil, err
	}
	if out[CollectionRequisitions], err = encodeAll(s.Requisitions, func(v procurement.PurchaseRequisition) string { return v.ID }); err != nil {
		return nil, err
	}
	if out[CollectionOrders], err = encodeAll(s.Orders, func(v procurement.OrderSnapshot) string { return v.ID }); err != nil {
		return nil, err
	}
	if out[CollectionSales], err = encodeAll(s.Sales, func(v sales.SaleSnapshot) string { return v.ID }); err != nil {
		return nil, err
	}
	if out[CollectionMessages], err = encodeAll(s.Messages, func(v notify.Message) string { return v.ID }); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode rebuilds a snapshot from ordered records. Missing collections decode as empty.
func Decode(records map[Collection][]Record) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.Items, err = decodeAll[inventory.Item](records[CollectionItems]); err != nil {
		return Snapshot{}, err
	}
	if snap.Suppliers, err = decodeAll[suppliers.Supplier](records[CollectionSuppliers]); err != nil {
		return Snapshot{}, err
	}
	if snap.Requisitions, err = decodeAll[procurement.PurchaseRequisition](records[CollectionRequisitions]); err != nil {
		return Snapshot{}, err
	}
	if snap.Orders, err = decodeAll[procurement.OrderSnapshot](records[CollectionOrders]); err != nil {
		return Snapshot{}, err
	}
	if snap.Sales, err = decodeAll[sales.SaleSnapshot](records[CollectionSales]); err != nil {
		return Snapshot{}, err
	}
	if snap.Messages, err = decodeAll[notify.Message](records[CollectionMessages]); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// MemoryStore keeps the last saved snapshot in process, encoded so callers never share slices.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Collection][]Record
	saves   int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Collection][]Record)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Decode(m.records)
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	records, err := snap.Encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.saves++
	return nil
}

// Saves reports how many snapshots were written.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
