// Package pgstore keeps engine snapshots in PostgreSQL.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/wholesale/internal/platform/db"
	"github.com/odyssey-erp/wholesale/internal/storage"
)

// Schema creates the snapshot, audit and approval tables.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	collection TEXT NOT NULL,
	position   INTEGER NOT NULL,
	id         TEXT NOT NULL,
	payload    JSONB NOT NULL,
	PRIMARY KEY (collection, position),
	UNIQUE (collection, id)
);
CREATE TABLE IF NOT EXISTS audit_logs (
	id          BIGSERIAL PRIMARY KEY,
	actor_id    TEXT NOT NULL,
	action      TEXT NOT NULL,
	entity      TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	meta        JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS approvals (
	id       BIGSERIAL PRIMARY KEY,
	module   TEXT NOT NULL,
	ref_id   UUID NOT NULL,
	actor_id TEXT NOT NULL,
	action   TEXT NOT NULL,
	note     TEXT NOT NULL DEFAULT '',
	at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS approvals_ref_idx ON approvals (module, ref_id);
`

// Store persists snapshots in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Load reads every collection in stored position order.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT collection, id, payload FROM snapshots ORDER BY collection, position`)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("pgstore: load: %w", err)
	}
	defer rows.Close()
	records := make(map[storage.Collection][]storage.Record)
	for rows.Next() {
		var (
			collection string
			rec        storage.Record
			payload    []byte
		)
		if err := rows.Scan(&collection, &rec.ID, &payload); err != nil {
			return storage.Snapshot{}, fmt.Errorf("pgstore: scan: %w", err)
		}
		rec.Payload = payload
		records[storage.Collection(collection)] = append(records[storage.Collection(collection)], rec)
	}
	if err := rows.Err(); err != nil {
		return storage.Snapshot{}, fmt.Errorf("pgstore: load: %w", err)
	}
	return storage.Decode(records)
}

// Save replaces every collection inside one repeatable-read transaction.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	records, err := snap.Encode()
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, collection := range storage.Collections() {
			if _, err := tx.Exec(ctx, `DELETE FROM snapshots WHERE collection = $1`, string(collection)); err != nil {
				return fmt.Errorf("pgstore: clear %s: %w", collection, err)
			}
			list := records[collection]
			if len(list) == 0 {
				continue
			}
			batch := &pgx.Batch{}
			const query = `INSERT INTO snapshots (collection, position, id, payload) VALUES ($1, $2, $3, $4)`
			for i, rec := range list {
				batch.Queue(query, string(collection), i, rec.ID, []byte(rec.Payload))
			}
			results := tx.SendBatch(ctx, batch)
			for range list {
				if _, err := results.Exec(); err != nil {
					_ = results.Close()
					return fmt.Errorf("pgstore: insert %s: %w", collection, err)
				}
			}
			if err := results.Close(); err != nil {
				return err
			}
		}
		return nil
	})
}
