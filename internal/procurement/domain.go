package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

// PRStatus enumerates purchase requisition statuses.
type PRStatus string

const (
	PRStatusOpen      PRStatus = "OPEN"
	PRStatusConverted PRStatus = "CONVERTED"
)

// POStatus enumerates purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft           POStatus = "DRAFT"
	POStatusPendingApproval POStatus = "PENDING_APPROVAL"
	POStatusApproved        POStatus = "APPROVED"
	POStatusRejected        POStatus = "REJECTED"
	POStatusFulfilled       POStatus = "FULFILLED"
)

// Editable reports whether line items may still change.
func (s POStatus) Editable() bool {
	return s == POStatusDraft || s == POStatusPendingApproval
}

// Decided reports whether a finance manager has ruled on the order.
func (s POStatus) Decided() bool {
	return s == POStatusApproved || s == POStatusRejected || s == POStatusFulfilled
}

// RequisitionLine describes a requested item.
type RequisitionLine struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Note     string `json:"note,omitempty"`
}

// PurchaseRequisition is an internal request to procure items.
type PurchaseRequisition struct {
	ID            string            `json:"pr_id"`
	RequestedBy   string            `json:"requested_by"`
	RequesterRole string            `json:"requester_role"`
	Lines         []RequisitionLine `json:"lines"`
	Status        PRStatus          `json:"status"`
	Note          string            `json:"note,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ConvertedTo   string            `json:"converted_to,omitempty"`
}

func (pr PurchaseRequisition) clone() PurchaseRequisition {
	pr.Lines = append([]RequisitionLine(nil), pr.Lines...)
	return pr
}

// POItem is a purchase order line.
type POItem struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// TotalCost returns quantity × unit cost.
func (i POItem) TotalCost() decimal.Decimal {
	return i.UnitCost.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// DeliveryRecord captures a full receipt of an approved order.
type DeliveryRecord struct {
	ReceivedBy string    `json:"received_by"`
	ReceivedAt time.Time `json:"received_at"`
	Reference  string    `json:"reference,omitempty"`
	Note       string    `json:"note,omitempty"`
}

var (
	// ErrEmptyOrder indicates a submit or approval of an order without lines.
	ErrEmptyOrder = fmt.Errorf("%w: procurement: order has no items", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: procurement: quantity must be positive", shared.ErrValidation)
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = fmt.Errorf("%w: procurement: unit cost must be >= 0", shared.ErrValidation)
	// ErrInvalidDates indicates a delivery date before the order date.
	ErrInvalidDates = fmt.Errorf("%w: procurement: delivery date precedes order date", shared.ErrValidation)
	// ErrItemIndex indicates a line index outside the order.
	ErrItemIndex = fmt.Errorf("%w: procurement: item index out of range", shared.ErrValidation)
	// ErrApproverRequired indicates a decision without a finance manager id.
	ErrApproverRequired = fmt.Errorf("%w: procurement: finance manager id required", shared.ErrValidation)
	// ErrCreatorRequired indicates an order without a purchase manager id.
	ErrCreatorRequired = fmt.Errorf("%w: procurement: purchase manager id required", shared.ErrValidation)
	// ErrInvalidTransition occurs when action violates status workflow.
	ErrInvalidTransition = fmt.Errorf("%w: procurement", shared.ErrInvalidState)
	// ErrOrderNotFound indicates an unknown purchase order.
	ErrOrderNotFound = fmt.Errorf("%w: procurement: purchase order", shared.ErrNotFound)
	// ErrRequisitionNotFound indicates an unknown purchase requisition.
	ErrRequisitionNotFound = fmt.Errorf("%w: procurement: purchase requisition", shared.ErrNotFound)
	// ErrDuplicateDocument indicates a requisition or order id collision.
	ErrDuplicateDocument = fmt.Errorf("%w: procurement: document already exists", shared.ErrValidation)
	// ErrItemRequired indicates a line without an item id.
	ErrItemRequired = fmt.Errorf("%w: procurement: item id required", shared.ErrValidation)
	// ErrUnknownItem indicates a line referencing an item that does not exist.
	ErrUnknownItem = fmt.Errorf("%w: procurement: unknown item", shared.ErrConsistency)
	// ErrUnknownSupplier indicates an order referencing a supplier that does not exist.
	ErrUnknownSupplier = fmt.Errorf("%w: procurement: unknown supplier", shared.ErrConsistency)
)

func transitionError(action string, from POStatus) error {
	return fmt.Errorf("%w: cannot %s order in status %s", ErrInvalidTransition, action, from)
}
