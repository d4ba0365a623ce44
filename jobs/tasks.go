package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/wholesale/internal/jobs"
	"github.com/odyssey-erp/wholesale/internal/notify"
)

const (
	// QueueNotifications carries outbound message deliveries.
	QueueNotifications = "notifications"
	// QueueInventory carries stock scans. It is served by the process that
	// owns the live workflow state.
	QueueInventory = "inventory"

	// TaskNotifyDispatch delivers one role-addressed message.
	TaskNotifyDispatch = "notify:dispatch"
	// TaskInventoryStockScan re-evaluates every active item.
	TaskInventoryStockScan = "inventory:stock_scan"
)

// NewNotificationTask constructs a dispatch task for msg.
func NewNotificationTask(msg notify.Message) (*asynq.Task, error) {
	if msg.ID == "" {
		return nil, errors.New("notification task: message id required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDispatch, data,
		asynq.Queue(QueueNotifications),
		asynq.TaskID(msg.ID),
		asynq.MaxRetry(5),
	), nil
}

// Deliverer sends a message over an external channel.
type Deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) error
}

// LogDeliverer writes messages to the log. It stands in for an SMTP or chat
// integration.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver implements Deliverer.
func (d LogDeliverer) Deliver(ctx context.Context, msg notify.Message) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "deliver notification",
		slog.String("message_id", msg.ID),
		slog.String("receiver_role", string(msg.ReceiverRole)),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// NotificationJob handles TaskNotifyDispatch.
type NotificationJob struct {
	Deliverer Deliverer
	Metrics   *jobmetrics.Metrics
}

// Handle decodes the message and hands it to the deliverer. Malformed
// payloads are not retried.
func (j *NotificationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Deliverer == nil {
		return errors.New("notification job: handler not configured")
	}
	var msg notify.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("notification payload: %v: %w", err, asynq.SkipRetry)
	}
	if !msg.ReceiverRole.Valid() {
		return fmt.Errorf("notification %s: unknown role %q: %w", msg.ID, msg.ReceiverRole, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskNotifyDispatch)
	defer func() { err = tracker.End(err) }()
	return j.Deliverer.Deliver(ctx, msg)
}

// StockScanPayload carries scheduling metadata.
type StockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockScanTask constructs a stock scan task. Cron registrations pass the
// zero time.
func NewStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryStockScan, body,
		asynq.Queue(QueueInventory),
		asynq.MaxRetry(1),
	), nil
}
