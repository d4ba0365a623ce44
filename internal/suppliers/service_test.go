package suppliers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

func register(t *testing.T, c *Catalog, id string, items ...string) {
	t.Helper()
	_, err := c.Register(context.Background(), SupplierInput{ID: id, Name: "Supplier " + id})
	require.NoError(t, err)
	for _, item := range items {
		_, err := c.AddItem(context.Background(), id, item)
		require.NoError(t, err)
	}
}

func TestPrimarySupplierIsFirstRegistered(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	register(t, c, "S1", "X")
	register(t, c, "S2", "X", "Y")

	for i := 0; i < 5; i++ {
		primary, err := c.GetPrimarySupplier(ctx, "X")
		require.NoError(t, err)
		require.Equal(t, "S1", primary.ID)
	}

	found := c.FindSuppliersForItem(ctx, "X")
	require.Equal(t, []string{"S1", "S2"}, []string{found[0].ID, found[1].ID})

	primary, err := c.GetPrimarySupplier(ctx, "Y")
	require.NoError(t, err)
	require.Equal(t, "S2", primary.ID)
}

func TestPrimarySupplierNotFound(t *testing.T) {
	c := NewCatalog()
	register(t, c, "S1", "X")

	_, err := c.GetPrimarySupplier(context.Background(), "Z")
	require.ErrorIs(t, err, ErrNoSupplier)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
	require.Empty(t, c.FindSuppliersForItem(context.Background(), "Z"))
}

func TestRemoveItemFallsBackToNextSupplier(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	register(t, c, "S1", "X")
	register(t, c, "S2", "X")

	_, err := c.RemoveItem(ctx, "S1", "X")
	require.NoError(t, err)
	primary, err := c.GetPrimarySupplier(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, "S2", primary.ID)

	_, err = c.RemoveItem(ctx, "S1", "X")
	require.ErrorIs(t, err, ErrItemNotLinked)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	register(t, c, "S1", "X")

	sup, err := c.Get(ctx, "S1")
	require.NoError(t, err)
	sup.ItemIDs[0] = "tampered"

	again, err := c.Get(ctx, "S1")
	require.NoError(t, err)
	require.Equal(t, []string{"X"}, again.ItemIDs)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	_, err := c.Register(ctx, SupplierInput{ID: "S1"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = c.Register(ctx, SupplierInput{ID: "S1", Name: "Acme", Email: "not-an-email"})
	require.ErrorIs(t, err, shared.ErrValidation)

	register(t, c, "S1")
	_, err = c.Register(ctx, SupplierInput{ID: "S1", Name: "Again"})
	require.ErrorIs(t, err, ErrDuplicateSupplier)

	_, err = c.AddItem(ctx, "missing", "X")
	require.ErrorIs(t, err, ErrSupplierNotFound)
}

func TestAddItemIsIdempotent(t *testing.T) {
	c := NewCatalog()
	register(t, c, "S1", "X", "X")
	sup, err := c.Get(context.Background(), "S1")
	require.NoError(t, err)
	require.Equal(t, []string{"X"}, sup.ItemIDs)
}

func TestLoadPreservesOrder(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	require.NoError(t, c.Load([]Supplier{
		{ID: "B", Name: "b", ItemIDs: []string{"X"}},
		{ID: "A", Name: "a", ItemIDs: []string{"X"}},
	}))
	primary, err := c.GetPrimarySupplier(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, "B", primary.ID)

	err = c.Load([]Supplier{{ID: "A"}, {ID: "A"}})
	require.ErrorIs(t, err, ErrDuplicateSupplier)
}
