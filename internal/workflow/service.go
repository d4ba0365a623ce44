// Package workflow sequences stock checks, requisitions, purchase orders,
// receipts and sales behind capability checks, and emits a role-addressed
// message at each transition.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/notify"
	"github.com/odyssey-erp/wholesale/internal/procurement"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/sales"
	"github.com/odyssey-erp/wholesale/internal/shared"
	"github.com/odyssey-erp/wholesale/internal/storage"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics receives workflow counters. observability.Metrics implements it.
type Metrics interface {
	Transition(entity, action string)
	Alert(status string)
	FlushFailed()
}

type nopMetrics struct{}

func (nopMetrics) Transition(string, string) {}
func (nopMetrics) Alert(string)              {}
func (nopMetrics) FlushFailed()              {}

// Options wires the collaborators of Service. Every field is optional.
type Options struct {
	Store      storage.Store
	Audit      AuditPort
	Approvals  procurement.ApprovalPort
	Tracker    inventory.AlertTracker
	Dispatcher notify.Dispatcher
	Metrics    Metrics
	Logger     *slog.Logger
	Locale     string
	Now        func() time.Time
}

// Service is the single mutation boundary of the engine. Every operation runs
// to completion under one lock before the next one starts.
type Service struct {
	mu sync.Mutex

	items       *inventory.Service
	alerter     *inventory.Alerter
	catalog     *suppliers.Catalog
	procurement *procurement.Service
	sales       *sales.Service
	notifier    *notify.Notifier
	mailbox     *notify.Mailbox
	format      notify.Formatter

	store   storage.Store
	audit   AuditPort
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New builds the domain services and wires them together.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	var audit AuditPort = shared.NewLogAuditor(logger)
	if opts.Audit != nil {
		audit = opts.Audit
	}
	var approvals procurement.ApprovalPort = shared.NewLogApprovalRecorder(logger)
	if opts.Approvals != nil {
		approvals = opts.Approvals
	}
	var metrics Metrics = nopMetrics{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}
	locale := opts.Locale
	if locale == "" {
		locale = "en"
	}

	items := inventory.NewService(inventory.NewRepository(), audit).WithClock(now)
	catalog := suppliers.NewCatalog().WithClock(now)
	s := &Service{
		items:       items,
		catalog:     catalog,
		procurement: procurement.NewService(procurement.NewRepository(), items, items, catalog, approvals, audit).WithClock(now),
		sales:       sales.NewService(sales.NewRepository(), items, items, audit).WithClock(now),
		notifier:    notify.NewNotifier(notify.SystemSender).WithClock(now),
		mailbox:     notify.NewMailbox(opts.Dispatcher, logger),
		format:      notify.NewFormatter(locale),
		store:       store,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		now:         now,
	}
	s.alerter = inventory.NewAlerter(opts.Tracker, items, alertSink{s: s}, logger)
	return s
}

// Load replaces the working set with the stored snapshot and primes the
// alert tracker with the restored stock statuses.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("workflow: load snapshot: %w", err)
	}
	if err := s.items.Load(snap.Items); err != nil {
		return fmt.Errorf("workflow: restore items: %w", err)
	}
	if err := s.catalog.Load(snap.Suppliers); err != nil {
		return fmt.Errorf("workflow: restore suppliers: %w", err)
	}
	if err := s.procurement.Load(snap.Requisitions, snap.Orders); err != nil {
		return fmt.Errorf("workflow: restore orders: %w", err)
	}
	if err := s.sales.Load(snap.Sales); err != nil {
		return fmt.Errorf("workflow: restore sales: %w", err)
	}
	if err := s.mailbox.Load(snap.Messages); err != nil {
		return fmt.Errorf("workflow: restore messages: %w", err)
	}
	if err := s.alerter.Prime(ctx, snap.Items); err != nil {
		s.logger.WarnContext(ctx, "prime alert tracker", slog.Any("error", err))
	}
	s.logger.InfoContext(ctx, "working set restored",
		slog.Int("items", len(snap.Items)),
		slog.Int("suppliers", len(snap.Suppliers)),
		slog.Int("orders", len(snap.Orders)),
		slog.Int("sales", len(snap.Sales)),
		slog.Int("messages", len(snap.Messages)),
	)
	return nil
}

// Snapshot returns the whole working set.
func (s *Service) Snapshot(ctx context.Context) (storage.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(ctx)
}

// Capabilities lists what p may do.
func (s *Service) Capabilities(p rbac.Principal) ([]rbac.Capability, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: principal", shared.ErrUnauthorized)
	}
	return rbac.Capabilities(p.Role), nil
}

func (s *Service) snapshot(ctx context.Context) (storage.Snapshot, error) {
	items, err := s.items.Snapshot(ctx)
	if err != nil {
		return storage.Snapshot{}, err
	}
	prs, orders, err := s.procurement.Snapshot(ctx)
	if err != nil {
		return storage.Snapshot{}, err
	}
	return storage.Snapshot{
		Items:        items,
		Suppliers:    s.catalog.Snapshot(ctx),
		Requisitions: prs,
		Orders:       orders,
		Sales:        s.sales.Snapshot(ctx),
		Messages:     s.mailbox.Snapshot(),
	}, nil
}

// commit counts the mutation and flushes the working set. A failed flush is
// logged; memory stays authoritative until the next successful flush.
func (s *Service) commit(ctx context.Context, entity, action string) {
	s.metrics.Transition(entity, action)
	snap, err := s.snapshot(ctx)
	if err == nil {
		err = s.store.Save(ctx, snap)
	}
	if err != nil {
		s.metrics.FlushFailed()
		s.logger.ErrorContext(ctx, "snapshot flush",
			slog.String("entity", entity),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

// evaluate feeds stock changes to the alerter. Alert failures never undo the
// movement that caused them.
func (s *Service) evaluate(ctx context.Context, changes []inventory.StockChange) {
	if len(changes) == 0 {
		return
	}
	if _, err := s.alerter.Evaluate(ctx, changes); err != nil {
		s.logger.WarnContext(ctx, "stock alert evaluation", slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, role rbac.Role, subject, content, relatedItemID string) {
	msg, err := s.notifier.Notify(string(role), subject, content, relatedItemID)
	if err != nil {
		s.logger.ErrorContext(ctx, "build notification", slog.String("subject", subject), slog.Any("error", err))
		return
	}
	s.mailbox.Deliver(ctx, msg)
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}

// alertSink turns inventory alerts into PURCHASE_MANAGER messages.
type alertSink struct {
	s *Service
}

func (a alertSink) LowStock(ctx context.Context, item inventory.Item) error {
	status := item.Status()
	f := a.s.format
	subject := f.Sprintf("Low stock: %s", item.Name)
	if status == inventory.StatusOutOfStock {
		subject = f.Sprintf("Out of stock: %s", item.Name)
	}
	content := f.Sprintf("%s (%s) is %s with %s units on hand; minimum is %s, maximum is %s.",
		item.Name, item.ID, status,
		f.Quantity(item.CurrentStock), f.Quantity(item.MinimumStock), f.Quantity(item.MaximumStock))
	msg, err := a.s.notifier.Notify(string(rbac.RolePurchase), subject, content, item.ID)
	if err != nil {
		return err
	}
	a.s.mailbox.Deliver(ctx, msg)
	a.s.metrics.Alert(string(status))
	return nil
}
