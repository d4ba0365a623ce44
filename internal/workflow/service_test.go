package workflow

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/notify"
	"github.com/odyssey-erp/wholesale/internal/procurement"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/sales"
	"github.com/odyssey-erp/wholesale/internal/shared"
	"github.com/odyssey-erp/wholesale/internal/storage"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

var (
	salesMgr     = rbac.Principal{UserID: "u-sales", Name: "Sam", Role: rbac.RoleSales}
	purchaseMgr  = rbac.Principal{UserID: "u-purchase", Name: "Pat", Role: rbac.RolePurchase}
	inventoryMgr = rbac.Principal{UserID: "u-inventory", Name: "Ivy", Role: rbac.RoleInventory}
	financeMgr   = rbac.Principal{UserID: "u-finance", Name: "Fin", Role: rbac.RoleFinance}
	admin        = rbac.Principal{UserID: "u-admin", Name: "Ada", Role: rbac.RoleAdmin}
)

type countingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
	alerts      map[string]int
	flushFails  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{transitions: map[string]int{}, alerts: map[string]int{}}
}

func (m *countingMetrics) Transition(entity, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[entity+":"+action]++
}

func (m *countingMetrics) Alert(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[status]++
}

func (m *countingMetrics) FlushFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushFails++
}

type failingStore struct{}

func (failingStore) Load(context.Context) (storage.Snapshot, error) {
	return storage.Snapshot{}, nil
}

func (failingStore) Save(context.Context, storage.Snapshot) error {
	return errors.New("disk full")
}

type fixture struct {
	svc     *Service
	store   *storage.MemoryStore
	metrics *countingMetrics
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	metrics := newCountingMetrics()
	svc := New(Options{Store: store, Metrics: metrics, Now: fixedClock()})
	return &fixture{svc: svc, store: store, metrics: metrics}
}

// seed registers supplier S1 and item A (stock 10, min 5, max 50, price 4).
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.RegisterSupplier(ctx, purchaseMgr, suppliers.SupplierInput{ID: "S1", Name: "Acme Supply"})
	require.NoError(t, err)
	_, err = f.svc.RegisterItem(ctx, inventoryMgr, inventory.ItemInput{
		ID:           "A",
		Name:         "Widget",
		UnitPrice:    decimal.NewFromInt(4),
		SupplierID:   "S1",
		CurrentStock: 10,
		MinimumStock: 5,
		MaximumStock: 50,
	})
	require.NoError(t, err)
}

func (f *fixture) sell(t *testing.T, itemID string, qty int) *sales.Sale {
	t.Helper()
	sale, err := f.svc.CreateSale(context.Background(), salesMgr, sales.CreateSaleInput{
		Items: []sales.LineInput{{ItemID: itemID, Quantity: qty}},
	})
	require.NoError(t, err)
	return sale
}

func (f *fixture) replenish(t *testing.T, itemID string, qty int) *procurement.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := f.svc.CreatePurchaseOrder(ctx, purchaseMgr, procurement.CreateOrderInput{
		Items: []procurement.POItemInput{{ItemID: itemID, Quantity: qty}},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitOrder(ctx, purchaseMgr, po.ID())
	require.NoError(t, err)
	_, err = f.svc.ApproveOrder(ctx, financeMgr, po.ID())
	require.NoError(t, err)
	po, err = f.svc.ReceiveOrder(ctx, inventoryMgr, po.ID(), procurement.DeliveryRecord{Reference: "DN-1"})
	require.NoError(t, err)
	return po
}

func inbox(t *testing.T, svc *Service, p rbac.Principal) []notify.Message {
	t.Helper()
	box, err := svc.Inbox(context.Background(), p, false)
	require.NoError(t, err)
	return box.Messages
}

func lowStockAlerts(msgs []notify.Message) int {
	count := 0
	for _, msg := range msgs {
		if strings.HasPrefix(msg.Subject, "Low stock") || strings.HasPrefix(msg.Subject, "Out of stock") {
			count++
		}
	}
	return count
}

func TestProcurementLifecycleNotifiesEachRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	pr, err := f.svc.RaiseRequisition(ctx, salesMgr, []procurement.RequisitionLine{{ItemID: "A", Quantity: 20}}, "customer backorder")
	require.NoError(t, err)
	require.Equal(t, procurement.PRStatusOpen, pr.Status)

	purchaseInbox := inbox(t, f.svc, purchaseMgr)
	require.Len(t, purchaseInbox, 1)
	assert.Equal(t, "A", purchaseInbox[0].RelatedItemID)
	assert.Contains(t, purchaseInbox[0].Subject, pr.ID)

	po, err := f.svc.CreatePurchaseOrder(ctx, purchaseMgr, procurement.CreateOrderInput{PRID: pr.ID})
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusDraft, po.Status())
	assert.Equal(t, "S1", po.SupplierID())
	assert.True(t, decimal.NewFromInt(80).Equal(po.TotalValue()))

	prs, err := f.svc.ListRequisitions(ctx, purchaseMgr, procurement.PRStatusConverted)
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, po.ID(), prs[0].ConvertedTo)

	_, err = f.svc.SubmitOrder(ctx, purchaseMgr, po.ID())
	require.NoError(t, err)
	financeInbox := inbox(t, f.svc, financeMgr)
	require.Len(t, financeInbox, 1)
	assert.Contains(t, financeInbox[0].Subject, "awaiting approval")

	approved, err := f.svc.ApproveOrder(ctx, financeMgr, po.ID())
	require.NoError(t, err)
	assert.Equal(t, procurement.POStatusApproved, approved.Status())
	assert.Equal(t, financeMgr.UserID, approved.FinanceManagerID())
	require.Len(t, inbox(t, f.svc, purchaseMgr), 2)

	received, err := f.svc.ReceiveOrder(ctx, inventoryMgr, po.ID(), procurement.DeliveryRecord{Reference: "DN-7"})
	require.NoError(t, err)
	assert.Equal(t, procurement.POStatusFulfilled, received.Status())
	delivery, ok := received.Delivery()
	require.True(t, ok)
	assert.Equal(t, inventoryMgr.UserID, delivery.ReceivedBy)

	check, err := f.svc.CheckStock(ctx, inventoryMgr, "A")
	require.NoError(t, err)
	assert.Equal(t, 30, check.Item.CurrentStock)
	assert.Equal(t, inventory.StatusNormal, check.Status)
	assert.Equal(t, "S1", check.PrimarySupplier)

	inventoryInbox := inbox(t, f.svc, inventoryMgr)
	require.Len(t, inventoryInbox, 1)
	assert.Contains(t, inventoryInbox[0].Subject, "received")

	assert.Equal(t, 1, f.metrics.transitions["purchase_order:receive"])
	assert.Zero(t, f.metrics.flushFails)
}

func TestRejectedOrderIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	po, err := f.svc.CreatePurchaseOrder(ctx, purchaseMgr, procurement.CreateOrderInput{
		Items: []procurement.POItemInput{{ItemID: "A", Quantity: 3}},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitOrder(ctx, purchaseMgr, po.ID())
	require.NoError(t, err)

	rejected, err := f.svc.RejectOrder(ctx, financeMgr, po.ID(), "over budget")
	require.NoError(t, err)
	assert.Equal(t, procurement.POStatusRejected, rejected.Status())
	assert.Equal(t, "over budget", rejected.RejectionReason())

	msgs := inbox(t, f.svc, purchaseMgr)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0].Content, "over budget")

	_, err = f.svc.ReceiveOrder(ctx, inventoryMgr, po.ID(), procurement.DeliveryRecord{})
	require.ErrorIs(t, err, procurement.ErrInvalidTransition)
	assert.Equal(t, shared.KindState, shared.KindOf(err))

	check, err := f.svc.CheckStock(ctx, inventoryMgr, "A")
	require.NoError(t, err)
	assert.Equal(t, 10, check.Item.CurrentStock)
}

func TestLowStockAlertsOncePerTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	f.sell(t, "A", 6) // 10 -> 4, LOW
	assert.Equal(t, 1, lowStockAlerts(inbox(t, f.svc, purchaseMgr)))

	f.sell(t, "A", 1) // 4 -> 3, still LOW
	assert.Equal(t, 1, lowStockAlerts(inbox(t, f.svc, purchaseMgr)))

	f.replenish(t, "A", 20) // 3 -> 23, NORMAL
	check, err := f.svc.CheckStock(ctx, purchaseMgr, "A")
	require.NoError(t, err)
	require.Equal(t, inventory.StatusNormal, check.Status)
	assert.Equal(t, 1, lowStockAlerts(inbox(t, f.svc, purchaseMgr)))

	f.sell(t, "A", 19) // 23 -> 4, LOW again
	assert.Equal(t, 2, lowStockAlerts(inbox(t, f.svc, purchaseMgr)))

	f.sell(t, "A", 4) // 4 -> 0, OUT_OF_STOCK is a new status
	msgs := inbox(t, f.svc, purchaseMgr)
	assert.Equal(t, 3, lowStockAlerts(msgs))
	assert.True(t, strings.HasPrefix(msgs[0].Subject, "Out of stock"))
	assert.Equal(t, 2, f.metrics.alerts[string(inventory.StatusLow)])
	assert.Equal(t, 1, f.metrics.alerts[string(inventory.StatusOutOfStock)])

	result, err := f.svc.ScanStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Alerted)
	assert.Equal(t, 1, result.Counts[inventory.StatusOutOfStock])
}

func TestThresholdChangeCanRaiseAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	minimum := 12
	item, err := f.svc.UpdateItem(ctx, inventoryMgr, "A", inventory.ItemUpdate{MinimumStock: &minimum})
	require.NoError(t, err)
	require.Equal(t, inventory.StatusLow, item.Status())
	assert.Equal(t, 1, lowStockAlerts(inbox(t, f.svc, purchaseMgr)))
}

func TestSaleIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	_, err := f.svc.RegisterItem(ctx, inventoryMgr, inventory.ItemInput{
		ID: "B", Name: "Gadget", UnitPrice: decimal.NewFromInt(2), CurrentStock: 3, MinimumStock: 1, MaximumStock: 10,
	})
	require.NoError(t, err)
	saves := f.store.Saves()

	_, err = f.svc.CreateSale(ctx, salesMgr, sales.CreateSaleInput{Items: []sales.LineInput{
		{ItemID: "A", Quantity: 5},
		{ItemID: "B", Quantity: 4},
	}})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	short, ok := inventory.AsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, "B", short.ItemID)
	assert.Equal(t, 4, short.Requested)
	assert.Equal(t, 3, short.Available)

	list, err := f.svc.ListSales(ctx, salesMgr)
	require.NoError(t, err)
	assert.Empty(t, list)
	check, err := f.svc.CheckStock(ctx, salesMgr, "A")
	require.NoError(t, err)
	assert.Equal(t, 10, check.Item.CurrentStock)
	assert.Equal(t, saves, f.store.Saves())
}

func TestSaleWithOverflowingLinesIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	half := math.MaxInt/2 + 1
	_, err := f.svc.CreateSale(ctx, salesMgr, sales.CreateSaleInput{Items: []sales.LineInput{
		{ItemID: "A", Quantity: half},
		{ItemID: "A", Quantity: half},
	}})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	list, err := f.svc.ListSales(ctx, salesMgr)
	require.NoError(t, err)
	assert.Empty(t, list)
	check, err := f.svc.CheckStock(ctx, salesMgr, "A")
	require.NoError(t, err)
	assert.Equal(t, 10, check.Item.CurrentStock)
}

func TestSaleTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	price := decimal.NewFromInt(6)
	sale, err := f.svc.CreateSale(ctx, salesMgr, sales.CreateSaleInput{Items: []sales.LineInput{
		{ItemID: "A", Quantity: 2, UnitPrice: &price},
	}})
	require.NoError(t, err)
	totals := sale.Totals()
	assert.True(t, decimal.NewFromInt(12).Equal(totals.TotalAmount))
	assert.True(t, decimal.NewFromInt(8).Equal(totals.TotalCostPrice))
	assert.True(t, decimal.NewFromInt(4).Equal(totals.Profit))
	assert.True(t, decimal.RequireFromString("0.5").Equal(totals.ProfitRatio))
	assert.Equal(t, salesMgr.UserID, sale.SalesManagerID())

	got, err := f.svc.GetSale(ctx, financeMgr, sale.ID())
	require.NoError(t, err)
	assert.Equal(t, sale.ID(), got.ID())
}

func TestCapabilitiesGateOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	_, err := f.svc.RegisterItem(ctx, salesMgr, inventory.ItemInput{ID: "X", Name: "x", MaximumStock: 1})
	require.ErrorIs(t, err, shared.ErrForbidden)

	po, err := f.svc.CreatePurchaseOrder(ctx, purchaseMgr, procurement.CreateOrderInput{
		Items: []procurement.POItemInput{{ItemID: "A", Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitOrder(ctx, purchaseMgr, po.ID())
	require.NoError(t, err)

	_, err = f.svc.ApproveOrder(ctx, purchaseMgr, po.ID())
	require.ErrorIs(t, err, rbac.ErrForbidden)
	_, err = f.svc.CreateSale(ctx, financeMgr, sales.CreateSaleInput{Items: []sales.LineInput{{ItemID: "A", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.ApproveOrder(ctx, rbac.Principal{}, po.ID())
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	approved, err := f.svc.ApproveOrder(ctx, admin, po.ID())
	require.NoError(t, err)
	assert.Equal(t, admin.UserID, approved.FinanceManagerID())

	caps, err := f.svc.Capabilities(financeMgr)
	require.NoError(t, err)
	assert.Contains(t, caps, rbac.CapApproveOrder)
	assert.NotContains(t, caps, rbac.CapCreateSale)
}

func TestRegisterItemRequiresKnownSupplier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.RegisterItem(ctx, inventoryMgr, inventory.ItemInput{ID: "A", Name: "Widget", SupplierID: "ghost", MaximumStock: 5})
	require.ErrorIs(t, err, suppliers.ErrSupplierNotFound)

	list, err := f.svc.FindSuppliers(ctx, purchaseMgr, "A")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = f.svc.CheckStock(ctx, purchaseMgr, "A")
	require.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestSupplierResolutionFollowsRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	_, err := f.svc.RegisterSupplier(ctx, purchaseMgr, suppliers.SupplierInput{ID: "S2", Name: "Backup"})
	require.NoError(t, err)
	_, err = f.svc.LinkSupplierItem(ctx, purchaseMgr, "S2", "A")
	require.NoError(t, err)
	_, err = f.svc.LinkSupplierItem(ctx, purchaseMgr, "S2", "missing")
	require.ErrorIs(t, err, inventory.ErrItemNotFound)

	found, err := f.svc.FindSuppliers(ctx, salesMgr, "A")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "S1", found[0].ID)

	_, err = f.svc.UnlinkSupplierItem(ctx, purchaseMgr, "S1", "A")
	require.NoError(t, err)
	primary, err := f.svc.PrimarySupplier(ctx, salesMgr, "A")
	require.NoError(t, err)
	assert.Equal(t, "S2", primary.ID)
}

func TestMarkMessageRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	f.sell(t, "A", 6)

	box, err := f.svc.Inbox(ctx, purchaseMgr, true)
	require.NoError(t, err)
	require.Equal(t, 1, box.Unread)

	_, err = f.svc.MarkMessageRead(ctx, salesMgr, box.Messages[0].ID)
	require.ErrorIs(t, err, notify.ErrMessageNotFound)

	msg, err := f.svc.MarkMessageRead(ctx, purchaseMgr, box.Messages[0].ID)
	require.NoError(t, err)
	assert.True(t, msg.IsRead)

	box, err = f.svc.Inbox(ctx, purchaseMgr, true)
	require.NoError(t, err)
	assert.Zero(t, box.Unread)
	assert.Empty(t, box.Messages)
}

func TestLoadRestoresFlushedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	f.sell(t, "A", 6)
	po, err := f.svc.CreatePurchaseOrder(ctx, purchaseMgr, procurement.CreateOrderInput{
		Items: []procurement.POItemInput{{ItemID: "A", Quantity: 7}},
	})
	require.NoError(t, err)

	restarted := New(Options{Store: f.store, Now: fixedClock()})
	require.NoError(t, restarted.Load(ctx))

	got, err := restarted.GetOrder(ctx, purchaseMgr, po.ID())
	require.NoError(t, err)
	assert.True(t, po.TotalValue().Equal(got.TotalValue()))
	sold, err := restarted.ListSales(ctx, salesMgr)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Len(t, inbox(t, restarted, purchaseMgr), 1)

	// item A was already LOW before the restart
	result, err := restarted.ScanStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Alerted)
}

func TestFlushFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	metrics := newCountingMetrics()
	svc := New(Options{Store: failingStore{}, Metrics: metrics, Now: fixedClock()})

	sup, err := svc.RegisterSupplier(ctx, purchaseMgr, suppliers.SupplierInput{ID: "S1", Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "S1", sup.ID)
	assert.Equal(t, 1, metrics.flushFails)

	list, err := svc.ListSuppliers(ctx, purchaseMgr)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStockReportGroupsActiveItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	_, err := f.svc.RegisterItem(ctx, inventoryMgr, inventory.ItemInput{
		ID: "B", Name: "Gadget", UnitPrice: decimal.NewFromInt(1), CurrentStock: 0, MaximumStock: 10,
	})
	require.NoError(t, err)
	_, err = f.svc.RegisterItem(ctx, inventoryMgr, inventory.ItemInput{
		ID: "C", Name: "Retired", UnitPrice: decimal.NewFromInt(1), CurrentStock: 1, MaximumStock: 10,
	})
	require.NoError(t, err)
	_, err = f.svc.DeactivateItem(ctx, inventoryMgr, "C")
	require.NoError(t, err)

	report, err := f.svc.StockReport(ctx, financeMgr)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts[inventory.StatusNormal])
	assert.Equal(t, 1, report.Counts[inventory.StatusOutOfStock])
	assert.Zero(t, report.Counts[inventory.StatusLow])
	assert.True(t, decimal.NewFromInt(40).Equal(report.InventoryValue))

	_, err = f.svc.AdjustStock(ctx, inventoryMgr, "C", 1, "found")
	require.ErrorIs(t, err, inventory.ErrInactiveItem)
	_, err = f.svc.AdjustStock(ctx, inventoryMgr, "A", -11, "count")
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
}
