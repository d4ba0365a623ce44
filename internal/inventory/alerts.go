package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertTracker remembers the last observed status per item.
type AlertTracker interface {
	// Observe stores status and returns the previously stored one; seen is false on first observation.
	Observe(ctx context.Context, itemID string, status StockStatus) (previous StockStatus, seen bool, err error)
}

// MemoryAlertTracker keeps statuses in process memory.
type MemoryAlertTracker struct {
	mu       sync.Mutex
	statuses map[string]StockStatus
}

// NewMemoryAlertTracker constructs MemoryAlertTracker.
func NewMemoryAlertTracker() *MemoryAlertTracker {
	return &MemoryAlertTracker{statuses: make(map[string]StockStatus)}
}

// Observe implements AlertTracker.
func (t *MemoryAlertTracker) Observe(_ context.Context, itemID string, status StockStatus) (StockStatus, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.statuses[itemID]
	t.statuses[itemID] = status
	return prev, ok, nil
}

// RedisAlertTracker shares statuses between the server and the worker.
type RedisAlertTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisAlertTracker constructs RedisAlertTracker. A zero ttl keeps keys forever.
func NewRedisAlertTracker(client *redis.Client, prefix string, ttl time.Duration) *RedisAlertTracker {
	if prefix == "" {
		prefix = "wholesale"
	}
	return &RedisAlertTracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *RedisAlertTracker) key(itemID string) string {
	return strings.Join([]string{t.prefix, "stock", "status", itemID}, ":")
}

// Observe implements AlertTracker.
func (t *RedisAlertTracker) Observe(ctx context.Context, itemID string, status StockStatus) (StockStatus, bool, error) {
	key := t.key(itemID)
	var prev *redis.StringCmd
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		prev = p.GetSet(ctx, key, string(status))
		if t.ttl > 0 {
			p.Expire(ctx, key, t.ttl)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, fmt.Errorf("inventory: alert tracker: %w", err)
	}
	val, err := prev.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("inventory: alert tracker: %w", err)
	}
	return StockStatus(val), true, nil
}

// AlertNotifier delivers replenishment alerts.
type AlertNotifier interface {
	LowStock(ctx context.Context, item Item) error
}

// ItemLookup resolves the current item state for alert content.
type ItemLookup interface {
	Get(ctx context.Context, id string) (Item, error)
}

// Alerter raises one alert per transition into LOW or OUT_OF_STOCK.
type Alerter struct {
	tracker  AlertTracker
	items    ItemLookup
	notifier AlertNotifier
	logger   *slog.Logger
}

// NewAlerter constructs Alerter.
func NewAlerter(tracker AlertTracker, items ItemLookup, notifier AlertNotifier, logger *slog.Logger) *Alerter {
	if tracker == nil {
		tracker = NewMemoryAlertTracker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{tracker: tracker, items: items, notifier: notifier, logger: logger}
}

// Evaluate observes every change and returns the items that were alerted.
func (a *Alerter) Evaluate(ctx context.Context, changes []StockChange) ([]Item, error) {
	var alerted []Item
	var errs []error
	for _, change := range changes {
		fired, item, err := a.observe(ctx, change.ItemID, change.Status)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fired {
			alerted = append(alerted, item)
		}
	}
	return alerted, errors.Join(errs...)
}

// Scan re-observes every active item, alerting only those whose status changed since the last observation.
func (a *Alerter) Scan(ctx context.Context, items []Item) ([]Item, error) {
	changes := make([]StockChange, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		status := item.Status()
		changes = append(changes, StockChange{
			ItemID:         item.ID,
			Before:         item.CurrentStock,
			After:          item.CurrentStock,
			PreviousStatus: status,
			Status:         status,
		})
	}
	return a.Evaluate(ctx, changes)
}

func (a *Alerter) observe(ctx context.Context, itemID string, status StockStatus) (bool, Item, error) {
	prev, seen, err := a.tracker.Observe(ctx, itemID, status)
	if err != nil {
		return false, Item{}, err
	}
	if !IsAlerting(status) || (seen && prev == status) {
		return false, Item{}, nil
	}
	item, err := a.items.Get(ctx, itemID)
	if err != nil {
		return false, Item{}, err
	}
	if a.notifier != nil {
		if err := a.notifier.LowStock(ctx, item); err != nil {
			return false, Item{}, err
		}
	}
	a.logger.InfoContext(ctx, "stock alert raised",
		slog.String("item_id", itemID),
		slog.String("status", string(status)),
		slog.Int("current_stock", item.CurrentStock),
	)
	return true, item, nil
}

// Prime records the current status of every item without notifying, so a
// restored working set does not re-alert items that were already low.
func (a *Alerter) Prime(ctx context.Context, items []Item) error {
	var errs []error
	for _, item := range items {
		if _, _, err := a.tracker.Observe(ctx, item.ID, item.Status()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
