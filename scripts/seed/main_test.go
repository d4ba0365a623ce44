package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/storage"
	"github.com/odyssey-erp/wholesale/internal/workflow"
)

func TestSeedDefaultDatasetIsIdempotent(t *testing.T) {
	var data dataset
	require.NoError(t, json.Unmarshal(defaultDataset, &data))

	ctx := context.Background()
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := workflow.New(workflow.Options{Store: store, Logger: logger})

	suppliersAdded, itemsAdded, err := seed(ctx, service, data)
	require.NoError(t, err)
	assert.Equal(t, len(data.Suppliers), suppliersAdded)
	assert.Equal(t, len(data.Items), itemsAdded)

	report, err := service.StockReport(ctx, rbac.Principal{UserID: "fin", Role: rbac.RoleFinance})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts[inventory.StatusLow])
	assert.Equal(t, 1, report.Counts[inventory.StatusOutOfStock])
	assert.Equal(t, 1, report.Counts[inventory.StatusOverstock])

	reloaded := workflow.New(workflow.Options{Store: store, Logger: logger})
	require.NoError(t, reloaded.Load(ctx))
	suppliersAdded, itemsAdded, err = seed(ctx, reloaded, data)
	require.NoError(t, err)
	assert.Zero(t, suppliersAdded)
	assert.Zero(t, itemsAdded)
}
