package procurement

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderHeader carries the fields fixed when an order is opened.
type OrderHeader struct {
	ID                string
	PRID              string
	SupplierID        string
	Date              time.Time
	DeliveryDate      time.Time
	PurchaseManagerID string
	Notes             string
}

// PurchaseOrder owns its line items and approval state. Line items are never
// exposed by reference, so TotalValue always reflects the current lines.
type PurchaseOrder struct {
	id                string
	prID              string
	supplierID        string
	date              time.Time
	deliveryDate      time.Time
	purchaseManagerID string
	financeManagerID  string
	status            POStatus
	notes             string
	rejectionReason   string
	decidedAt         time.Time
	delivery          *DeliveryRecord
	items             []POItem
	updatedAt         time.Time
}

// NewPurchaseOrder opens a DRAFT order.
func NewPurchaseOrder(h OrderHeader, now time.Time) (*PurchaseOrder, error) {
	if strings.TrimSpace(h.PurchaseManagerID) == "" {
		return nil, ErrCreatorRequired
	}
	if h.Date.IsZero() {
		h.Date = now
	}
	if h.DeliveryDate.IsZero() {
		h.DeliveryDate = h.Date
	}
	if h.DeliveryDate.Before(h.Date) {
		return nil, ErrInvalidDates
	}
	return &PurchaseOrder{
		id:                h.ID,
		prID:              h.PRID,
		supplierID:        h.SupplierID,
		date:              h.Date,
		deliveryDate:      h.DeliveryDate,
		purchaseManagerID: h.PurchaseManagerID,
		status:            POStatusDraft,
		notes:             h.Notes,
		updatedAt:         now,
	}, nil
}

func (po *PurchaseOrder) ID() string                { return po.id }
func (po *PurchaseOrder) PRID() string              { return po.prID }
func (po *PurchaseOrder) SupplierID() string        { return po.supplierID }
func (po *PurchaseOrder) Date() time.Time           { return po.date }
func (po *PurchaseOrder) DeliveryDate() time.Time   { return po.deliveryDate }
func (po *PurchaseOrder) PurchaseManagerID() string { return po.purchaseManagerID }
func (po *PurchaseOrder) FinanceManagerID() string  { return po.financeManagerID }
func (po *PurchaseOrder) Status() POStatus          { return po.status }
func (po *PurchaseOrder) Notes() string             { return po.notes }
func (po *PurchaseOrder) RejectionReason() string   { return po.rejectionReason }
func (po *PurchaseOrder) ItemCount() int            { return len(po.items) }

// Delivery returns the receipt record once the order is fulfilled.
func (po *PurchaseOrder) Delivery() (DeliveryRecord, bool) {
	if po.delivery == nil {
		return DeliveryRecord{}, false
	}
	return *po.delivery, true
}

// Items returns a copy of the line items.
func (po *PurchaseOrder) Items() []POItem {
	return append([]POItem(nil), po.items...)
}

// TotalValue sums quantity × unit cost over the current lines.
func (po *PurchaseOrder) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.items {
		total = total.Add(item.TotalCost())
	}
	return total
}

// AddItem appends a line while the order is DRAFT or PENDING_APPROVAL.
func (po *PurchaseOrder) AddItem(item POItem, now time.Time) error {
	if !po.status.Editable() {
		return transitionError("add items to", po.status)
	}
	if strings.TrimSpace(item.ItemID) == "" {
		return ErrItemRequired
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	po.items = append(po.items, item)
	po.updatedAt = now
	return nil
}

// RemoveItem drops the line at index while the order is editable.
func (po *PurchaseOrder) RemoveItem(index int, now time.Time) (POItem, error) {
	if !po.status.Editable() {
		return POItem{}, transitionError("remove items from", po.status)
	}
	if index < 0 || index >= len(po.items) {
		return POItem{}, fmt.Errorf("%w: %d of %d", ErrItemIndex, index, len(po.items))
	}
	removed := po.items[index]
	next := make([]POItem, 0, len(po.items)-1)
	next = append(next, po.items[:index]...)
	po.items = append(next, po.items[index+1:]...)
	po.updatedAt = now
	return removed, nil
}

// Submit moves a DRAFT order to PENDING_APPROVAL.
func (po *PurchaseOrder) Submit(now time.Time) error {
	if po.status != POStatusDraft {
		return transitionError("submit", po.status)
	}
	if len(po.items) == 0 {
		return ErrEmptyOrder
	}
	po.status = POStatusPendingApproval
	po.updatedAt = now
	return nil
}

// Approve records the finance manager and moves the order to APPROVED.
func (po *PurchaseOrder) Approve(financeManagerID string, now time.Time) error {
	if po.status != POStatusPendingApproval {
		return transitionError("approve", po.status)
	}
	if strings.TrimSpace(financeManagerID) == "" {
		return ErrApproverRequired
	}
	if len(po.items) == 0 {
		return ErrEmptyOrder
	}
	po.status = POStatusApproved
	po.financeManagerID = financeManagerID
	po.decidedAt = now
	po.updatedAt = now
	return nil
}

// Reject records the finance manager and reason. REJECTED is terminal.
func (po *PurchaseOrder) Reject(financeManagerID, reason string, now time.Time) error {
	if po.status != POStatusPendingApproval {
		return transitionError("reject", po.status)
	}
	if strings.TrimSpace(financeManagerID) == "" {
		return ErrApproverRequired
	}
	po.status = POStatusRejected
	po.financeManagerID = financeManagerID
	po.rejectionReason = reason
	po.decidedAt = now
	po.updatedAt = now
	return nil
}

// Receive marks an APPROVED order as FULFILLED. Stock is posted by the caller.
func (po *PurchaseOrder) Receive(record DeliveryRecord, now time.Time) error {
	if err := po.ensureReceivable(); err != nil {
		return err
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = now
	}
	po.status = POStatusFulfilled
	po.delivery = &record
	po.updatedAt = now
	return nil
}

func (po *PurchaseOrder) ensureReceivable() error {
	if po.status != POStatusApproved {
		return transitionError("receive", po.status)
	}
	return nil
}

func (po *PurchaseOrder) clone() *PurchaseOrder {
	cp := *po
	cp.items = po.Items()
	if po.delivery != nil {
		d := *po.delivery
		cp.delivery = &d
	}
	return &cp
}

// OrderSnapshot is the persisted and wire form of a purchase order.
type OrderSnapshot struct {
	ID                string          `json:"po_id"`
	PRID              string          `json:"pr_id,omitempty"`
	SupplierID        string          `json:"supplier_id,omitempty"`
	Date              time.Time       `json:"date"`
	DeliveryDate      time.Time       `json:"delivery_date"`
	PurchaseManagerID string          `json:"purchase_manager_id"`
	FinanceManagerID  string          `json:"finance_manager_id,omitempty"`
	Status            POStatus        `json:"status"`
	Notes             string          `json:"notes,omitempty"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
	Delivery          *DeliveryRecord `json:"delivery,omitempty"`
	Items             []POItem        `json:"items"`
	TotalValue        decimal.Decimal `json:"total_value"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Snapshot copies the order into its persisted form.
func (po *PurchaseOrder) Snapshot() OrderSnapshot {
	snap := OrderSnapshot{
		ID:                po.id,
		PRID:              po.prID,
		SupplierID:        po.supplierID,
		Date:              po.date,
		DeliveryDate:      po.deliveryDate,
		PurchaseManagerID: po.purchaseManagerID,
		FinanceManagerID:  po.financeManagerID,
		Status:            po.status,
		Notes:             po.notes,
		RejectionReason:   po.rejectionReason,
		Items:             po.Items(),
		TotalValue:        po.TotalValue(),
		UpdatedAt:         po.updatedAt,
	}
	if snap.Items == nil {
		snap.Items = []POItem{}
	}
	if !po.decidedAt.IsZero() {
		at := po.decidedAt
		snap.DecidedAt = &at
	}
	if d, ok := po.Delivery(); ok {
		snap.Delivery = &d
	}
	return snap
}

// MarshalJSON renders the order through its snapshot.
func (po *PurchaseOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(po.Snapshot())
}

// RestoreOrder rebuilds an order from a snapshot, re-checking its invariants.
// TotalValue in the snapshot is ignored and recomputed from the items.
func RestoreOrder(snap OrderSnapshot) (*PurchaseOrder, error) {
	switch snap.Status {
	case POStatusDraft, POStatusPendingApproval, POStatusApproved, POStatusRejected, POStatusFulfilled:
	default:
		return nil, fmt.Errorf("%w: order %s has unknown status %q", ErrInvalidTransition, snap.ID, snap.Status)
	}
	if snap.Status.Decided() != (snap.FinanceManagerID != "") {
		return nil, fmt.Errorf("%w: order %s approver does not match status %s", ErrInvalidTransition, snap.ID, snap.Status)
	}
	if snap.DeliveryDate.Before(snap.Date) {
		return nil, fmt.Errorf("%w: order %s", ErrInvalidDates, snap.ID)
	}
	for _, item := range snap.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: order %s", ErrInvalidQuantity, snap.ID)
		}
		if item.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: order %s", ErrInvalidUnitCost, snap.ID)
		}
	}
	po := &PurchaseOrder{
		id:                snap.ID,
		prID:              snap.PRID,
		supplierID:        snap.SupplierID,
		date:              snap.Date,
		deliveryDate:      snap.DeliveryDate,
		purchaseManagerID: snap.PurchaseManagerID,
		financeManagerID:  snap.FinanceManagerID,
		status:            snap.Status,
		notes:             snap.Notes,
		rejectionReason:   snap.RejectionReason,
		items:             append([]POItem(nil), snap.Items...),
		updatedAt:         snap.UpdatedAt,
	}
	if snap.DecidedAt != nil {
		po.decidedAt = *snap.DecidedAt
	}
	if snap.Delivery != nil {
		d := *snap.Delivery
		po.delivery = &d
	}
	return po, nil
}
