// Package redisstore keeps engine snapshots in Redis, one key per collection.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/wholesale/internal/storage"
)

// Store persists snapshots in Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New constructs Store. prefix namespaces every key.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "wholesale"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(c storage.Collection) string {
	return strings.Join([]string{s.prefix, "snapshot", string(c)}, ":")
}

// Load reads every collection with a single MGET.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	collections := storage.Collections()
	keys := make([]string, 0, len(collections))
	for _, c := range collections {
		keys = append(keys, s.key(c))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("redisstore: load: %w", err)
	}
	records := make(map[storage.Collection][]storage.Record, len(collections))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var list []storage.Record
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return storage.Snapshot{}, fmt.Errorf("redisstore: decode %s: %w", collections[i], err)
		}
		records[collections[i]] = list
	}
	return storage.Decode(records)
}

// Save writes every collection inside one MULTI/EXEC block.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	records, err := snap.Encode()
	if err != nil {
		return err
	}
	payloads := make(map[string][]byte, len(records))
	for _, c := range storage.Collections() {
		list := records[c]
		if list == nil {
			list = []storage.Record{}
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("redisstore: encode %s: %w", c, err)
		}
		payloads[s.key(c)] = raw
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for key, raw := range payloads {
			p.Set(ctx, key, raw, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: save: %w", err)
	}
	return nil
}
