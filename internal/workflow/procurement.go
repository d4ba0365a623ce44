package workflow

import (
	"context"
	"strings"

	"github.com/odyssey-erp/wholesale/internal/procurement"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

// RegisterSupplier appends a supplier to the catalog.
func (s *Service) RegisterSupplier(ctx context.Context, p rbac.Principal, input suppliers.SupplierInput) (suppliers.Supplier, error) {
	if err := rbac.Authorize(p, rbac.CapManageSuppliers); err != nil {
		return suppliers.Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, err := s.catalog.Register(ctx, input)
	if err != nil {
		return suppliers.Supplier{}, err
	}
	s.recordAudit(ctx, p.UserID, "suppliers:register", "supplier", sup.ID, map[string]any{"name": sup.Name})
	s.commit(ctx, "supplier", "register")
	return sup, nil
}

// UpdateSupplier changes contact details.
func (s *Service) UpdateSupplier(ctx context.Context, p rbac.Principal, id string, update suppliers.SupplierUpdate) (suppliers.Supplier, error) {
	if err := rbac.Authorize(p, rbac.CapManageSuppliers); err != nil {
		return suppliers.Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, err := s.catalog.Update(ctx, id, update)
	if err != nil {
		return suppliers.Supplier{}, err
	}
	s.recordAudit(ctx, p.UserID, "suppliers:update", "supplier", sup.ID, nil)
	s.commit(ctx, "supplier", "update")
	return sup, nil
}

// LinkSupplierItem records that a supplier can deliver an existing item.
func (s *Service) LinkSupplierItem(ctx context.Context, p rbac.Principal, supplierID, itemID string) (suppliers.Supplier, error) {
	if err := rbac.Authorize(p, rbac.CapManageSuppliers); err != nil {
		return suppliers.Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.items.Get(ctx, itemID); err != nil {
		return suppliers.Supplier{}, err
	}
	sup, err := s.catalog.AddItem(ctx, supplierID, strings.TrimSpace(itemID))
	if err != nil {
		return suppliers.Supplier{}, err
	}
	s.recordAudit(ctx, p.UserID, "suppliers:link_item", "supplier", sup.ID, map[string]any{"item_id": itemID})
	s.commit(ctx, "supplier", "link_item")
	return sup, nil
}

// UnlinkSupplierItem removes an item from a supplier's association set.
func (s *Service) UnlinkSupplierItem(ctx context.Context, p rbac.Principal, supplierID, itemID string) (suppliers.Supplier, error) {
	if err := rbac.Authorize(p, rbac.CapManageSuppliers); err != nil {
		return suppliers.Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, err := s.catalog.RemoveItem(ctx, supplierID, itemID)
	if err != nil {
		return suppliers.Supplier{}, err
	}
	s.recordAudit(ctx, p.UserID, "suppliers:unlink_item", "supplier", sup.ID, map[string]any{"item_id": itemID})
	s.commit(ctx, "supplier", "unlink_item")
	return sup, nil
}

// ListSuppliers returns the catalog in registration order.
func (s *Service) ListSuppliers(ctx context.Context, p rbac.Principal) ([]suppliers.Supplier, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.List(ctx), nil
}

// FindSuppliers returns every supplier of itemID in registration order.
func (s *Service) FindSuppliers(ctx context.Context, p rbac.Principal, itemID string) ([]suppliers.Supplier, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.FindSuppliersForItem(ctx, itemID), nil
}

// PrimarySupplier returns the first-registered supplier of itemID.
func (s *Service) PrimarySupplier(ctx context.Context, p rbac.Principal, itemID string) (suppliers.Supplier, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return suppliers.Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.GetPrimarySupplier(ctx, itemID)
}

// RaiseRequisition records an OPEN requisition and tells purchasing.
func (s *Service) RaiseRequisition(ctx context.Context, p rbac.Principal, lines []procurement.RequisitionLine, note string) (procurement.PurchaseRequisition, error) {
	if err := rbac.Authorize(p, rbac.CapRaiseRequisition); err != nil {
		return procurement.PurchaseRequisition{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, err := s.procurement.RaiseRequisition(ctx, procurement.RequisitionInput{
		RequestedBy:   p.UserID,
		RequesterRole: string(p.Role),
		Lines:         lines,
		Note:          note,
	})
	if err != nil {
		return procurement.PurchaseRequisition{}, err
	}
	related := ""
	if len(pr.Lines) == 1 {
		related = pr.Lines[0].ItemID
	}
	content := s.format.Sprintf("%s (%s) requested %s line(s).", displayName(p), p.Role, s.format.Quantity(len(pr.Lines)))
	if pr.Note != "" {
		content += " " + pr.Note
	}
	s.notify(ctx, rbac.RolePurchase, s.format.Sprintf("Purchase requisition %s", pr.ID), content, related)
	s.commit(ctx, "requisition", "raise")
	return pr, nil
}

// ListRequisitions returns requisitions, optionally filtered by status.
func (s *Service) ListRequisitions(ctx context.Context, p rbac.Principal, status procurement.PRStatus) ([]procurement.PurchaseRequisition, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procurement.ListRequisitions(ctx, status)
}

// CreatePurchaseOrder opens a DRAFT order, either direct or from an OPEN requisition.
func (s *Service) CreatePurchaseOrder(ctx context.Context, p rbac.Principal, input procurement.CreateOrderInput) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapCreateOrder); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	input.PurchaseManagerID = p.UserID
	po, err := s.procurement.CreateOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	s.commit(ctx, "purchase_order", "create")
	return po, nil
}

// AddOrderItem appends a line to an editable order.
func (s *Service) AddOrderItem(ctx context.Context, p rbac.Principal, poID string, line procurement.POItemInput) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapCreateOrder); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	po, err := s.procurement.AddItem(ctx, poID, p.UserID, line)
	if err != nil {
		return nil, err
	}
	s.commit(ctx, "purchase_order", "add_item")
	return po, nil
}

// RemoveOrderItem drops the line at index from an editable order.
func (s *Service) RemoveOrderItem(ctx context.Context, p rbac.Principal, poID string, index int) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapCreateOrder); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	po, err := s.procurement.RemoveItem(ctx, poID, p.UserID, index)
	if err != nil {
		return nil, err
	}
	s.commit(ctx, "purchase_order", "remove_item")
	return po, nil
}

// SubmitOrder sends a DRAFT order to finance for approval.
func (s *Service) SubmitOrder(ctx context.Context, p rbac.Principal, poID string) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapCreateOrder); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	po, err := s.procurement.Submit(ctx, poID, p.UserID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, rbac.RoleFinance,
		s.format.Sprintf("Purchase order %s awaiting approval", po.ID()),
		s.format.Sprintf("%s submitted %s line(s) worth %s for approval.",
			displayName(p), s.format.Quantity(po.ItemCount()), s.format.Amount(po.TotalValue())),
		"")
	s.commit(ctx, "purchase_order", "submit")
	return po, nil
}

// ApproveOrder records the finance decision and tells purchasing.
func (s *Service) ApproveOrder(ctx context.Context, p rbac.Principal, poID string) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapApproveOrder); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	po, err := s.procurement.Approve(ctx, poID, p.UserID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, rbac.RolePurchase,
		s.format.Sprintf("Purchase order %s approved", po.ID()),
		s.format.Sprintf("%s approved %s for %s.", displayName(p), po.ID(), s.format.Amount(po.TotalValue())),
		"")
	s.commit(ctx, "purchase_order", "approve")
	return po, nil
}

// RejectOrder records the finance decision and reason and tells purchasing.
func (s *Service) RejectOrder(ctx context.Context, p rbac.Principal, poID, reason string) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapApproveOrder); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	po, err := s.procurement.Reject(ctx, poID, p.UserID, reason)
	if err != nil {
		return nil, err
	}
	content := s.format.Sprintf("%s rejected %s.", displayName(p), po.ID())
	if po.RejectionReason() != "" {
		content = s.format.Sprintf("%s rejected %s: %s", displayName(p), po.ID(), po.RejectionReason())
	}
	s.notify(ctx, rbac.RolePurchase, s.format.Sprintf("Purchase order %s rejected", po.ID()), content, "")
	s.commit(ctx, "purchase_order", "reject")
	return po, nil
}

// ReceiveOrder fulfils an APPROVED order, posts its lines into stock and
// tells the inventory team.
func (s *Service) ReceiveOrder(ctx context.Context, p rbac.Principal, poID string, record procurement.DeliveryRecord) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapReceiveOrder); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ReceivedBy = p.UserID
	po, changes, err := s.procurement.Receive(ctx, poID, record)
	if err != nil {
		return nil, err
	}
	units := 0
	for _, item := range po.Items() {
		units += item.Quantity
	}
	s.notify(ctx, rbac.RoleInventory,
		s.format.Sprintf("Purchase order %s received", po.ID()),
		s.format.Sprintf("%s units over %s line(s) were added to stock.", s.format.Quantity(units), s.format.Quantity(po.ItemCount())),
		"")
	s.evaluate(ctx, changes)
	s.commit(ctx, "purchase_order", "receive")
	return po, nil
}

// GetOrder returns one purchase order.
func (s *Service) GetOrder(ctx context.Context, p rbac.Principal, poID string) (*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procurement.GetOrder(ctx, poID)
}

// ListOrders returns purchase orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, p rbac.Principal, status procurement.POStatus) ([]*procurement.PurchaseOrder, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procurement.ListOrders(ctx, status)
}

func displayName(p rbac.Principal) string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.UserID
}
