package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/platform/db"
	"github.com/odyssey-erp/wholesale/internal/storage"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

// newTestStore connects to WHOLESALE_TEST_PG_DSN. The database is wiped of
// snapshot rows before and after each test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("WHOLESALE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("WHOLESALE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := New(pool)
	require.NoError(t, store.Migrate(ctx))
	wipe := func() {
		_, err := pool.Exec(ctx, `DELETE FROM snapshots`)
		require.NoError(t, err)
	}
	wipe()
	t.Cleanup(wipe)
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)

	snap := storage.Snapshot{
		Items: []inventory.Item{
			{ID: "Z", Name: "Zinc", UnitPrice: decimal.RequireFromString("1.25"), CurrentStock: 4, MinimumStock: 2, MaximumStock: 9, Active: true, DateAdded: at, LastUpdated: at},
			{ID: "A", Name: "Anchor", UnitPrice: decimal.NewFromInt(9), MaximumStock: 5, Active: true, DateAdded: at, LastUpdated: at},
		},
		Suppliers: []suppliers.Supplier{{ID: "S1", Name: "First", ItemIDs: []string{"A", "Z"}}},
	}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "Z", loaded.Items[0].ID)
	assert.True(t, loaded.Items[0].UnitPrice.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, []string{"A", "Z"}, loaded.Suppliers[0].ItemIDs)

	snap.Items = snap.Items[1:]
	require.NoError(t, store.Save(ctx, snap))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "A", loaded.Items[0].ID)
}
