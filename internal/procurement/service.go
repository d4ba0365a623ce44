package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/shared"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPR(ctx context.Context, id string) (PurchaseRequisition, error)
	ListPRs(ctx context.Context) ([]PurchaseRequisition, error)
	GetPO(ctx context.Context, id string) (*PurchaseOrder, error)
	ListPOs(ctx context.Context) ([]*PurchaseOrder, error)
	Replace(prs []PurchaseRequisition, pos []*PurchaseOrder)
}

// ItemPort resolves referenced items.
type ItemPort interface {
	Get(ctx context.Context, id string) (inventory.Item, error)
}

// InventoryPort exposes required inventory integration.
type InventoryPort interface {
	Receive(ctx context.Context, mv inventory.Movement) ([]inventory.StockChange, error)
}

// SupplierPort resolves referenced suppliers.
type SupplierPort interface {
	Get(ctx context.Context, id string) (suppliers.Supplier, error)
	GetPrimarySupplier(ctx context.Context, itemID string) (suppliers.Supplier, error)
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo      RepositoryPort
	items     ItemPort
	inventory InventoryPort
	suppliers SupplierPort
	approvals ApprovalPort
	audit     AuditPort
	now       func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, items ItemPort, inventory InventoryPort, suppliers SupplierPort, approvals ApprovalPort, audit AuditPort) *Service {
	return &Service{
		repo:      repo,
		items:     items,
		inventory: inventory,
		suppliers: suppliers,
		approvals: approvals,
		audit:     audit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

var validate = validator.New()

// RequisitionInput describes a requisition raised by sales or inventory staff.
type RequisitionInput struct {
	RequestedBy   string            `json:"-" validate:"required"`
	RequesterRole string            `json:"-" validate:"required"`
	Lines         []RequisitionLine `json:"lines" validate:"required,min=1,dive"`
	Note          string            `json:"note" validate:"max=1000"`
}

// POItemInput describes an order line. A nil UnitCost takes the item's unit price.
type POItemInput struct {
	ItemID   string           `json:"item_id" validate:"required"`
	Quantity int              `json:"quantity"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
}

// CreateOrderInput defines data to open a PO, either direct or from a PR.
type CreateOrderInput struct {
	PRID              string        `json:"pr_id"`
	SupplierID        string        `json:"supplier_id"`
	Date              time.Time     `json:"date"`
	DeliveryDate      time.Time     `json:"delivery_date"`
	PurchaseManagerID string        `json:"-"`
	Notes             string        `json:"notes"`
	Items             []POItemInput `json:"items"`
}

// RaiseRequisition persists an OPEN requisition.
func (s *Service) RaiseRequisition(ctx context.Context, input RequisitionInput) (PurchaseRequisition, error) {
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return PurchaseRequisition{}, ErrInvalidQuantity
		}
	}
	if err := validate.Struct(input); err != nil {
		return PurchaseRequisition{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	for _, line := range input.Lines {
		if err := s.checkItem(ctx, line.ItemID); err != nil {
			return PurchaseRequisition{}, err
		}
	}
	pr := PurchaseRequisition{
		ID:            shared.NewDocumentNumber("PR"),
		RequestedBy:   input.RequestedBy,
		RequesterRole: input.RequesterRole,
		Lines:         append([]RequisitionLine(nil), input.Lines...),
		Status:        PRStatusOpen,
		Note:          input.Note,
		CreatedAt:     s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertPR(ctx, pr)
	})
	if err != nil {
		return PurchaseRequisition{}, err
	}
	s.recordAudit(ctx, input.RequestedBy, "PR_CREATE", "purchase_requisition", pr.ID, map[string]any{"lines": len(pr.Lines)})
	return pr.clone(), nil
}

// GetRequisition returns one requisition.
func (s *Service) GetRequisition(ctx context.Context, id string) (PurchaseRequisition, error) {
	pr, err := s.repo.GetPR(ctx, id)
	if err != nil {
		return PurchaseRequisition{}, fmt.Errorf("%w: %s", err, id)
	}
	return pr, nil
}

// ListRequisitions lists requisitions, optionally filtered by status.
func (s *Service) ListRequisitions(ctx context.Context, status PRStatus) ([]PurchaseRequisition, error) {
	prs, err := s.repo.ListPRs(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return prs, nil
	}
	out := make([]PurchaseRequisition, 0, len(prs))
	for _, pr := range prs {
		if pr.Status == status {
			out = append(out, pr)
		}
	}
	return out, nil
}

// CreateOrder opens a DRAFT order. When PRID is set, the requisition must be
// OPEN; it becomes CONVERTED and seeds the lines if none are given.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*PurchaseOrder, error) {
	now := s.now()
	po, err := NewPurchaseOrder(OrderHeader{
		ID:                shared.NewDocumentNumber("PO"),
		PRID:              strings.TrimSpace(input.PRID),
		SupplierID:        strings.TrimSpace(input.SupplierID),
		Date:              input.Date,
		DeliveryDate:      input.DeliveryDate,
		PurchaseManagerID: input.PurchaseManagerID,
		Notes:             input.Notes,
	}, now)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines := input.Items
		if po.prID != "" {
			pr, err := tx.GetPRForUpdate(ctx, po.prID)
			if err != nil {
				return fmt.Errorf("%w: %s", err, po.prID)
			}
			if pr.Status != PRStatusOpen {
				return fmt.Errorf("%w: requisition %s is %s", ErrInvalidTransition, pr.ID, pr.Status)
			}
			if len(lines) == 0 {
				for _, l := range pr.Lines {
					lines = append(lines, POItemInput{ItemID: l.ItemID, Quantity: l.Quantity})
				}
			}
			pr.Status = PRStatusConverted
			pr.ConvertedTo = po.id
			if err := tx.SavePR(ctx, pr); err != nil {
				return err
			}
		}
		for _, line := range lines {
			item, err := s.buildItem(ctx, line)
			if err != nil {
				return err
			}
			if err := po.AddItem(item, now); err != nil {
				return err
			}
		}
		if err := s.resolveSupplier(ctx, po); err != nil {
			return err
		}
		return tx.InsertPO(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, po.purchaseManagerID, "PO_CREATE", "purchase_order", po.id, map[string]any{
		"from_pr":     po.prID,
		"supplier_id": po.supplierID,
		"total_value": po.TotalValue().String(),
	})
	return po.clone(), nil
}

// GetOrder returns a detached copy of one order.
func (s *Service) GetOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, id)
	}
	return po, nil
}

// ListOrders lists orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status POStatus) ([]*PurchaseOrder, error) {
	pos, err := s.repo.ListPOs(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return pos, nil
	}
	out := make([]*PurchaseOrder, 0, len(pos))
	for _, po := range pos {
		if po.status == status {
			out = append(out, po)
		}
	}
	return out, nil
}

// AddItem appends a line to an editable order.
func (s *Service) AddItem(ctx context.Context, poID, actorID string, line POItemInput) (*PurchaseOrder, error) {
	return s.mutate(ctx, poID, actorID, "PO_ADD_ITEM", func(ctx context.Context, po *PurchaseOrder, now time.Time) error {
		item, err := s.buildItem(ctx, line)
		if err != nil {
			return err
		}
		if err := po.AddItem(item, now); err != nil {
			return err
		}
		return s.resolveSupplier(ctx, po)
	})
}

// RemoveItem drops the line at index from an editable order.
func (s *Service) RemoveItem(ctx context.Context, poID, actorID string, index int) (*PurchaseOrder, error) {
	return s.mutate(ctx, poID, actorID, "PO_REMOVE_ITEM", func(_ context.Context, po *PurchaseOrder, now time.Time) error {
		_, err := po.RemoveItem(index, now)
		return err
	})
}

// Submit requests approval.
func (s *Service) Submit(ctx context.Context, poID, actorID string) (*PurchaseOrder, error) {
	po, err := s.mutate(ctx, poID, actorID, "PO_SUBMIT", func(_ context.Context, po *PurchaseOrder, now time.Time) error {
		return po.Submit(now)
	})
	if err != nil {
		return nil, err
	}
	s.recordApproval(ctx, po, actorID, shared.ApprovalSubmit, fmt.Sprintf("PO %s submitted", po.id))
	return po, nil
}

// Approve marks PO as approved and logs approval.
func (s *Service) Approve(ctx context.Context, poID, financeManagerID string) (*PurchaseOrder, error) {
	po, err := s.mutate(ctx, poID, financeManagerID, "PO_APPROVE", func(_ context.Context, po *PurchaseOrder, now time.Time) error {
		return po.Approve(financeManagerID, now)
	})
	if err != nil {
		return nil, err
	}
	s.recordApproval(ctx, po, financeManagerID, shared.ApprovalApprove, fmt.Sprintf("PO %s approved", po.id))
	return po, nil
}

// Reject marks PO as rejected and logs the reason.
func (s *Service) Reject(ctx context.Context, poID, financeManagerID, reason string) (*PurchaseOrder, error) {
	po, err := s.mutate(ctx, poID, financeManagerID, "PO_REJECT", func(_ context.Context, po *PurchaseOrder, now time.Time) error {
		return po.Reject(financeManagerID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.recordApproval(ctx, po, financeManagerID, shared.ApprovalReject, reason)
	return po, nil
}

// Receive fulfils an APPROVED order and posts every line into stock. The
// order is only saved when the stock receipt succeeds.
func (s *Service) Receive(ctx context.Context, poID string, record DeliveryRecord) (*PurchaseOrder, []inventory.StockChange, error) {
	if s.inventory == nil {
		return nil, nil, errors.New("procurement: inventory integration not configured")
	}
	var changes []inventory.StockChange
	po, err := s.mutate(ctx, poID, record.ReceivedBy, "PO_RECEIVE", func(ctx context.Context, po *PurchaseOrder, now time.Time) error {
		if err := po.ensureReceivable(); err != nil {
			return err
		}
		lines := make([]inventory.StockLine, 0, len(po.items))
		for _, item := range po.items {
			lines = append(lines, inventory.StockLine{ItemID: item.ItemID, Quantity: item.Quantity})
		}
		var err error
		changes, err = s.inventory.Receive(ctx, inventory.Movement{
			Lines:     lines,
			RefModule: "procurement",
			RefID:     po.id,
			Note:      record.Note,
			ActorID:   record.ReceivedBy,
		})
		if err != nil {
			return err
		}
		return po.Receive(record, now)
	})
	if err != nil {
		return nil, nil, err
	}
	return po, changes, nil
}

// Load replaces requisitions and orders with a persisted snapshot.
func (s *Service) Load(prs []PurchaseRequisition, orders []OrderSnapshot) error {
	restored := make([]*PurchaseOrder, 0, len(orders))
	for _, snap := range orders {
		po, err := RestoreOrder(snap)
		if err != nil {
			return err
		}
		restored = append(restored, po)
	}
	known := make(map[string]bool, len(prs))
	for _, pr := range prs {
		known[pr.ID] = true
	}
	for _, po := range restored {
		if po.prID != "" && !known[po.prID] {
			return fmt.Errorf("%w: order %s references %s", ErrRequisitionNotFound, po.id, po.prID)
		}
	}
	s.repo.Replace(prs, restored)
	return nil
}

// Snapshot returns requisitions and orders for persistence.
func (s *Service) Snapshot(ctx context.Context) ([]PurchaseRequisition, []OrderSnapshot, error) {
	prs, err := s.repo.ListPRs(ctx)
	if err != nil {
		return nil, nil, err
	}
	pos, err := s.repo.ListPOs(ctx)
	if err != nil {
		return nil, nil, err
	}
	snaps := make([]OrderSnapshot, 0, len(pos))
	for _, po := range pos {
		snaps = append(snaps, po.Snapshot())
	}
	return prs, snaps, nil
}

func (s *Service) mutate(ctx context.Context, poID, actorID, action string, fn func(context.Context, *PurchaseOrder, time.Time) error) (*PurchaseOrder, error) {
	var out *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return fmt.Errorf("%w: %s", err, poID)
		}
		if err := fn(ctx, po, s.now()); err != nil {
			return err
		}
		out = po
		return tx.SavePO(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, action, "purchase_order", poID, map[string]any{
		"status":      string(out.status),
		"total_value": out.TotalValue().String(),
	})
	return out.clone(), nil
}

func (s *Service) buildItem(ctx context.Context, line POItemInput) (POItem, error) {
	if err := validate.Struct(line); err != nil {
		return POItem{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if line.Quantity <= 0 {
		return POItem{}, ErrInvalidQuantity
	}
	item := POItem{ItemID: line.ItemID, Quantity: line.Quantity}
	if line.UnitCost != nil {
		item.UnitCost = *line.UnitCost
	}
	if s.items == nil {
		return item, nil
	}
	stocked, err := s.items.Get(ctx, line.ItemID)
	if errors.Is(err, inventory.ErrItemNotFound) {
		return POItem{}, fmt.Errorf("%w: %s", ErrUnknownItem, line.ItemID)
	}
	if err != nil {
		return POItem{}, err
	}
	if line.UnitCost == nil {
		item.UnitCost = stocked.UnitPrice
	}
	return item, nil
}

func (s *Service) checkItem(ctx context.Context, itemID string) error {
	if s.items == nil {
		return nil
	}
	_, err := s.items.Get(ctx, itemID)
	if errors.Is(err, inventory.ErrItemNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	return err
}

// resolveSupplier validates an explicit supplier or defaults to the primary
// supplier of the first line.
func (s *Service) resolveSupplier(ctx context.Context, po *PurchaseOrder) error {
	if s.suppliers == nil {
		return nil
	}
	if po.supplierID != "" {
		if _, err := s.suppliers.Get(ctx, po.supplierID); err != nil {
			if errors.Is(err, suppliers.ErrSupplierNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownSupplier, po.supplierID)
			}
			return err
		}
		return nil
	}
	if len(po.items) == 0 {
		return nil
	}
	primary, err := s.suppliers.GetPrimarySupplier(ctx, po.items[0].ItemID)
	if errors.Is(err, suppliers.ErrNoSupplier) {
		return nil
	}
	if err != nil {
		return err
	}
	po.supplierID = primary.ID
	return nil
}

func (s *Service) recordApproval(ctx context.Context, po *PurchaseOrder, actorID string, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "PO",
		RefID:   shared.ApprovalRef("PO", po.id),
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta})
}
