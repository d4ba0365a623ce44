package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/platform/cache"
	"github.com/odyssey-erp/wholesale/internal/platform/db"
	"github.com/odyssey-erp/wholesale/internal/procurement"
	"github.com/odyssey-erp/wholesale/internal/shared"
	"github.com/odyssey-erp/wholesale/internal/storage"
	"github.com/odyssey-erp/wholesale/internal/storage/pgstore"
	"github.com/odyssey-erp/wholesale/internal/storage/redisstore"
	"github.com/odyssey-erp/wholesale/internal/workflow"
)

// Backends holds the connections and adapters selected by configuration.
type Backends struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Store     storage.Store
	Audit     workflow.AuditPort
	Approvals procurement.ApprovalPort
	Tracker   inventory.AlertTracker
}

// OpenBackends connects the stores named by cfg. Audit and approval history
// go to PostgreSQL when it is the store, and to the log otherwise.
func OpenBackends(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{
		Store:     storage.NewMemoryStore(),
		Audit:     shared.NewLogAuditor(logger),
		Approvals: shared.NewLogApprovalRecorder(logger),
		Tracker:   inventory.NewMemoryAlertTracker(),
	}
	if cfg.StoreDriver == StorePostgres {
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		b.Pool = pool
		store := pgstore.New(pool)
		if err := store.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Store = store
		b.Audit = shared.NewAuditLogger(pool)
		b.Approvals = shared.NewApprovalRecorder(pool, logger)
	}
	if cfg.UsesRedis() {
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Redis = client
		b.Tracker = inventory.NewRedisAlertTracker(client, cfg.SnapshotPrefix, cfg.AlertStateTTL)
		if cfg.StoreDriver == StoreRedis {
			b.Store = redisstore.New(client, cfg.SnapshotPrefix)
		}
	}
	return b, nil
}

// AsynqOpts returns the queue connection options, sharing the Redis settings.
func (c *Config) AsynqOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Close releases every open connection.
func (b *Backends) Close() error {
	var errs []error
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
	return errors.Join(errs...)
}
