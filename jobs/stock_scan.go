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
	"github.com/odyssey-erp/wholesale/internal/workflow"
)

// StockScanner is the workflow operation the scan drives.
type StockScanner interface {
	ScanStock(ctx context.Context) (workflow.ScanResult, error)
}

// StockScanJob alerts items that slipped into LOW or OUT_OF_STOCK without a
// movement observing it, such as after a threshold import.
type StockScanJob struct {
	Scanner StockScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStockScanJob initialises the stock scan handler.
func NewStockScanJob(scanner StockScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &StockScanJob{
		Scanner: scanner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one scan.
func (j *StockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("stock scan: handler not configured")
	}
	var payload StockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("stock scan payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskInventoryStockScan)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger
	if !payload.ScheduledFor.IsZero() {
		logger = logger.With(slog.Time("scheduled_for", payload.ScheduledFor))
	}

	result, err := j.Scanner.ScanStock(ctx)
	if err != nil {
		logger.Error("stock scan failed", slog.Any("error", err))
		return err
	}
	for status, count := range result.Counts {
		j.Metrics.AddScanned(string(status), count)
	}
	for _, item := range result.Alerted {
		logger.Warn("stock alert raised",
			slog.String("item_id", item.ID),
			slog.String("status", string(item.Status())),
			slog.Int("current_stock", item.CurrentStock),
		)
	}
	logger.Info("completed stock scan",
		slog.Int("alerted", len(result.Alerted)),
		slog.Duration("duration", j.clock().Sub(start)),
	)
	return nil
}
