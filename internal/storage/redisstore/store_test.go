package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/notify"
	"github.com/odyssey-erp/wholesale/internal/procurement"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/storage"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test"), mr
}

func TestLoadEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, snap.Items)
	require.Empty(t, snap.Messages)
}

func TestSaveAndLoadPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	at := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	snap := storage.Snapshot{
		Items: []inventory.Item{
			{ID: "B", Name: "Bolt", UnitPrice: decimal.RequireFromString("2.50"), CurrentStock: 3, MaximumStock: 10, Active: true, DateAdded: at, LastUpdated: at},
			{ID: "A", Name: "Anchor", UnitPrice: decimal.NewFromInt(9), MaximumStock: 5, Active: true, DateAdded: at, LastUpdated: at},
		},
		Suppliers: []suppliers.Supplier{
			{ID: "S2", Name: "Second", ItemIDs: []string{"A"}},
			{ID: "S1", Name: "First", ItemIDs: []string{"A", "B"}},
		},
		Orders: []procurement.OrderSnapshot{{
			ID: "PO-1", PurchaseManagerID: "u", Status: procurement.POStatusDraft, Date: at, DeliveryDate: at,
			Items: []procurement.POItem{{ItemID: "A", Quantity: 2, UnitCost: decimal.NewFromInt(4)}},
		}},
		Messages: []notify.Message{{ID: "m1", ReceiverRole: rbac.RolePurchase, Subject: "Low stock", Timestamp: at}},
	}
	require.NoError(t, store.Save(ctx, snap))
	require.True(t, mr.Exists("test:snapshot:items"))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, []string{loaded.Items[0].ID, loaded.Items[1].ID})
	require.True(t, decimal.RequireFromString("2.5").Equal(loaded.Items[0].UnitPrice))
	require.Equal(t, "S2", loaded.Suppliers[0].ID)
	require.Equal(t, []string{"A", "B"}, loaded.Suppliers[1].ItemIDs)
	require.Len(t, loaded.Orders, 1)
	require.Equal(t, 2, loaded.Orders[0].Items[0].Quantity)
	require.Equal(t, rbac.RolePurchase, loaded.Messages[0].ReceiverRole)
	require.Empty(t, loaded.Sales)

	snap.Items = snap.Items[:1]
	require.NoError(t, store.Save(ctx, snap))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
}

func TestLoadCorruptPayload(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("test:snapshot:items", "{not json"))
	_, err := store.Load(context.Background())
	require.Error(t, err)
}
