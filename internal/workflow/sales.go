package workflow

import (
	"context"

	"github.com/odyssey-erp/wholesale/internal/notify"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/sales"
)

// CreateSale issues stock for every line and stores the sale, or rejects the
// whole sale. Items driven into LOW or OUT_OF_STOCK alert purchasing.
func (s *Service) CreateSale(ctx context.Context, p rbac.Principal, input sales.CreateSaleInput) (*sales.Sale, error) {
	if err := rbac.Authorize(p, rbac.CapCreateSale); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	input.SalesManagerID = p.UserID
	result, err := s.sales.CreateSale(ctx, input)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, result.Changes)
	s.commit(ctx, "sale", "create")
	return result.Sale, nil
}

// GetSale returns one sale.
func (s *Service) GetSale(ctx context.Context, p rbac.Principal, id string) (*sales.Sale, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sales.Get(ctx, id)
}

// ListSales returns every sale in creation order.
func (s *Service) ListSales(ctx context.Context, p rbac.Principal) ([]*sales.Sale, error) {
	if err := rbac.Authorize(p, rbac.CapViewReports); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sales.List(ctx), nil
}

// Inbox is a role's view of its messages.
type Inbox struct {
	Role     rbac.Role        `json:"role"`
	Unread   int              `json:"unread"`
	Messages []notify.Message `json:"messages"`
}

// Inbox returns the messages addressed to the caller's role, newest first.
func (s *Service) Inbox(ctx context.Context, p rbac.Principal, unreadOnly bool) (Inbox, error) {
	if err := rbac.Authorize(p, rbac.CapReadMessages); err != nil {
		return Inbox{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Inbox{
		Role:     p.Role,
		Unread:   s.mailbox.UnreadCount(p.Role),
		Messages: s.mailbox.Inbox(p.Role, unreadOnly),
	}, nil
}

// MarkMessageRead flags one of the caller's messages as read.
func (s *Service) MarkMessageRead(ctx context.Context, p rbac.Principal, id string) (notify.Message, error) {
	if err := rbac.Authorize(p, rbac.CapReadMessages); err != nil {
		return notify.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.mailbox.MarkRead(id, p.Role)
	if err != nil {
		return notify.Message{}, err
	}
	s.commit(ctx, "message", "read")
	return msg, nil
}
