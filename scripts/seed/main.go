package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/odyssey-erp/wholesale/internal/app"
	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
	"github.com/odyssey-erp/wholesale/internal/workflow"
)

//go:embed dataset.json
var defaultDataset []byte

type dataset struct {
	Suppliers []suppliers.SupplierInput `json:"suppliers"`
	Items     []inventory.ItemInput     `json:"items"`
}

var seeder = rbac.Principal{UserID: "seed", Name: "Seeder", Role: rbac.RoleAdmin}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	raw := defaultDataset
	if len(os.Args) > 1 {
		if raw, err = os.ReadFile(os.Args[1]); err != nil {
			logger.Error("read dataset", slog.Any("error", err))
			os.Exit(1)
		}
	}
	var data dataset
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error("parse dataset", slog.Any("error", err))
		os.Exit(1)
	}

	backends, err := app.OpenBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("open backends", slog.Any("error", err))
		os.Exit(1)
	}
	defer backends.Close()

	service := workflow.New(workflow.Options{
		Store:     backends.Store,
		Audit:     backends.Audit,
		Approvals: backends.Approvals,
		Tracker:   backends.Tracker,
		Logger:    logger,
		Locale:    cfg.Locale,
	})
	if err := service.Load(ctx); err != nil {
		logger.Error("load workflow state", slog.Any("error", err))
		os.Exit(1)
	}

	suppliersAdded, itemsAdded, err := seed(ctx, service, data)
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("→ seeded %d suppliers and %d items into %s store\n", suppliersAdded, itemsAdded, cfg.StoreDriver)
}

// seed registers suppliers, then items. Entries whose id already exists are
// skipped so the script can be re-run against a populated store.
func seed(ctx context.Context, service *workflow.Service, data dataset) (int, int, error) {
	snap, err := service.Snapshot(ctx)
	if err != nil {
		return 0, 0, err
	}
	knownSuppliers := make(map[string]bool, len(snap.Suppliers))
	for _, s := range snap.Suppliers {
		knownSuppliers[s.ID] = true
	}
	knownItems := make(map[string]bool, len(snap.Items))
	for _, item := range snap.Items {
		knownItems[item.ID] = true
	}

	var suppliersAdded, itemsAdded int
	for _, input := range data.Suppliers {
		if knownSuppliers[input.ID] {
			continue
		}
		if _, err := service.RegisterSupplier(ctx, seeder, input); err != nil {
			return suppliersAdded, itemsAdded, fmt.Errorf("supplier %s: %w", input.ID, err)
		}
		suppliersAdded++
	}
	for _, input := range data.Items {
		if knownItems[input.ID] {
			continue
		}
		if _, err := service.RegisterItem(ctx, seeder, input); err != nil {
			return suppliersAdded, itemsAdded, fmt.Errorf("item %s: %w", input.ID, err)
		}
		itemsAdded++
	}
	return suppliersAdded, itemsAdded, nil
}
