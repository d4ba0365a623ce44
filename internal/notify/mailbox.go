package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/wholesale/internal/rbac"
)

// Dispatcher forwards delivered messages to an external channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Mailbox stores messages per role. Messages are never deleted.
type Mailbox struct {
	mu         sync.RWMutex
	messages   []Message
	index      map[string]int
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewMailbox constructs Mailbox. dispatcher may be nil.
func NewMailbox(dispatcher Dispatcher, logger *slog.Logger) *Mailbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailbox{index: make(map[string]int), dispatcher: dispatcher, logger: logger}
}

// Deliver stores msg and hands it to the dispatcher. A dispatch failure is
// logged; the stored message stays authoritative.
func (m *Mailbox) Deliver(ctx context.Context, msg Message) {
	m.mu.Lock()
	if _, ok := m.index[msg.ID]; !ok {
		m.index[msg.ID] = len(m.messages)
		m.messages = append(m.messages, msg)
	}
	m.mu.Unlock()

	if m.dispatcher == nil {
		return
	}
	if err := m.dispatcher.Dispatch(ctx, msg); err != nil {
		m.logger.WarnContext(ctx, "dispatch message",
			slog.String("message_id", msg.ID),
			slog.String("receiver_role", string(msg.ReceiverRole)),
			slog.Any("error", err),
		)
	}
}

// Inbox returns the messages addressed to role, newest first.
func (m *Mailbox) Inbox(role rbac.Role, unreadOnly bool) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, 0)
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.ReceiverRole != role || (unreadOnly && msg.IsRead) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// UnreadCount counts unread messages for role.
func (m *Mailbox) UnreadCount(role rbac.Role) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, msg := range m.messages {
		if msg.ReceiverRole == role && !msg.IsRead {
			count++
		}
	}
	return count
}

// MarkRead flags a message as read. Only messages addressed to role may be
// marked; ADMIN may mark any.
func (m *Mailbox) MarkRead(id string, role rbac.Role) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.index[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	msg := m.messages[pos]
	if role != rbac.RoleAdmin && msg.ReceiverRole != role {
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	msg.IsRead = true
	m.messages[pos] = msg
	return msg, nil
}

// Load replaces the mailbox with a persisted snapshot.
func (m *Mailbox) Load(list []Message) error {
	index := make(map[string]int, len(list))
	for i, msg := range list {
		if !msg.ReceiverRole.Valid() {
			return fmt.Errorf("%w: message %s addressed to %q", ErrUnknownRole, msg.ID, msg.ReceiverRole)
		}
		if _, dup := index[msg.ID]; dup {
			return fmt.Errorf("notify: duplicate message %s", msg.ID)
		}
		index[msg.ID] = i
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append([]Message(nil), list...)
	m.index = index
	return nil
}

// Snapshot returns every message in delivery order.
func (m *Mailbox) Snapshot() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.messages...)
}
