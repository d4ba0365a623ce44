package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/shared"
)

// Message is a role-addressed notification.
type Message struct {
	ID            string    `json:"message_id"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	ReceiverRole  rbac.Role `json:"receiver_role"`
	Subject       string    `json:"subject"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	IsRead        bool      `json:"is_read"`
	RelatedItemID string    `json:"related_item_id,omitempty"`
}

// Sender identifies who emits a message.
type Sender struct {
	ID   string
	Name string
}

// SystemSender is used for messages raised by the engine itself.
var SystemSender = Sender{ID: "system", Name: "Workflow Engine"}

var (
	// ErrUnknownRole indicates a message addressed to a role that does not exist.
	ErrUnknownRole = fmt.Errorf("%w: notify: unknown role", shared.ErrValidation)
	// ErrMessageNotFound indicates an unknown message id.
	ErrMessageNotFound = fmt.Errorf("%w: notify: message", shared.ErrNotFound)
)

// Notifier builds timestamped messages. It never stores or delivers them.
type Notifier struct {
	sender Sender
	now    func() time.Time
}

// NewNotifier constructs Notifier for sender.
func NewNotifier(sender Sender) *Notifier {
	if sender.ID == "" {
		sender = SystemSender
	}
	return &Notifier{sender: sender, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, used by tests.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Notify constructs a message for receiverRole. relatedItemID may be empty.
func (n *Notifier) Notify(receiverRole, subject, content, relatedItemID string) (Message, error) {
	role, err := rbac.ParseRole(receiverRole)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownRole, receiverRole)
	}
	return Message{
		ID:            uuid.NewString(),
		SenderID:      n.sender.ID,
		SenderName:    n.sender.Name,
		ReceiverRole:  role,
		Subject:       strings.TrimSpace(subject),
		Content:       content,
		Timestamp:     n.now(),
		RelatedItemID: relatedItemID,
	}, nil
}
