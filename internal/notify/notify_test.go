package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/shared"
)

type recordingDispatcher struct {
	sent []Message
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg Message) error {
	d.sent = append(d.sent, msg)
	return d.err
}

func TestNotifyBuildsTimestampedMessage(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	n := NewNotifier(Sender{ID: "u-1", Name: "Dana"}).WithClock(func() time.Time { return at })

	msg, err := n.Notify("purchase", " Low stock ", "Item A is low", "A")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, rbac.RolePurchase, msg.ReceiverRole)
	require.Equal(t, "Low stock", msg.Subject)
	require.Equal(t, at, msg.Timestamp)
	require.Equal(t, "A", msg.RelatedItemID)
	require.False(t, msg.IsRead)
	require.Equal(t, "Dana", msg.SenderName)
}

func TestNotifyUnknownRole(t *testing.T) {
	_, err := NewNotifier(Sender{}).Notify("JANITOR", "s", "c", "")
	require.ErrorIs(t, err, ErrUnknownRole)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestMailboxInboxAndMarkRead(t *testing.T) {
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	box := NewMailbox(dispatcher, nil)
	n := NewNotifier(SystemSender)

	first, err := n.Notify(string(rbac.RolePurchase), "one", "", "")
	require.NoError(t, err)
	second, err := n.Notify(string(rbac.RolePurchase), "two", "", "")
	require.NoError(t, err)
	other, err := n.Notify(string(rbac.RoleFinance), "three", "", "")
	require.NoError(t, err)
	for _, msg := range []Message{first, second, other} {
		box.Deliver(ctx, msg)
	}
	box.Deliver(ctx, first)

	inbox := box.Inbox(rbac.RolePurchase, false)
	require.Len(t, inbox, 2)
	require.Equal(t, "two", inbox[0].Subject)
	require.Equal(t, 2, box.UnreadCount(rbac.RolePurchase))
	require.Len(t, dispatcher.sent, 4)

	_, err = box.MarkRead(first.ID, rbac.RoleFinance)
	require.ErrorIs(t, err, ErrMessageNotFound)

	read, err := box.MarkRead(first.ID, rbac.RolePurchase)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.Equal(t, 1, box.UnreadCount(rbac.RolePurchase))
	require.Len(t, box.Inbox(rbac.RolePurchase, true), 1)
	require.Len(t, box.Snapshot(), 3)

	_, err = box.MarkRead("missing", rbac.RoleAdmin)
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMailboxKeepsMessageWhenDispatchFails(t *testing.T) {
	box := NewMailbox(&recordingDispatcher{err: errors.New("queue down")}, nil)
	msg, err := NewNotifier(SystemSender).Notify("FINANCE_MANAGER", "s", "c", "")
	require.NoError(t, err)
	box.Deliver(context.Background(), msg)
	require.Equal(t, 1, box.UnreadCount(rbac.RoleFinance))
}

func TestMailboxLoadValidatesRoles(t *testing.T) {
	box := NewMailbox(nil, nil)
	err := box.Load([]Message{{ID: "m1", ReceiverRole: "NOBODY"}})
	require.ErrorIs(t, err, ErrUnknownRole)

	require.NoError(t, box.Load([]Message{{ID: "m1", ReceiverRole: rbac.RoleAdmin, IsRead: true}}))
	require.Equal(t, 0, box.UnreadCount(rbac.RoleAdmin))
}

func TestFormatter(t *testing.T) {
	f := NewFormatter("en")
	require.Equal(t, "12,500", f.Quantity(12500))
	require.Equal(t, "1,234.50", f.Amount(decimal.RequireFromString("1234.5")))

	fallback := NewFormatter("not a tag!")
	require.Equal(t, "7", fallback.Quantity(7))
}
