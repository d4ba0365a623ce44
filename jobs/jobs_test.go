package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	jobmetrics "github.com/odyssey-erp/wholesale/internal/jobs"
	"github.com/odyssey-erp/wholesale/internal/notify"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/workflow"
)

type recordingDeliverer struct {
	delivered []notify.Message
	err       error
}

func (d *recordingDeliverer) Deliver(_ context.Context, msg notify.Message) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, msg)
	return nil
}

type stubScanner struct {
	result workflow.ScanResult
	err    error
	calls  int
}

func (s *stubScanner) ScanStock(context.Context) (workflow.ScanResult, error) {
	s.calls++
	return s.result, s.err
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestNotificationTaskRoundTrip(t *testing.T) {
	msg := notify.Message{ID: "m-1", ReceiverRole: rbac.RoleFinance, Subject: "PO-1 awaiting approval"}
	task, err := NewNotificationTask(msg)
	require.NoError(t, err)
	assert.Equal(t, TaskNotifyDispatch, task.Type())

	deliverer := &recordingDeliverer{}
	reg := prometheus.NewRegistry()
	job := &NotificationJob{Deliverer: deliverer, Metrics: jobmetrics.NewMetrics(reg)}
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, deliverer.delivered, 1)
	assert.Equal(t, "PO-1 awaiting approval", deliverer.delivered[0].Subject)
	count, err := testutil.GatherAndCount(reg, "wholesale_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotificationTaskRequiresID(t *testing.T) {
	_, err := NewNotificationTask(notify.Message{ReceiverRole: rbac.RoleSales})
	require.Error(t, err)
}

func TestNotificationJobSkipsMalformedPayloads(t *testing.T) {
	job := &NotificationJob{Deliverer: &recordingDeliverer{}}

	err := job.Handle(context.Background(), asynq.NewTask(TaskNotifyDispatch, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(notify.Message{ID: "m-2", ReceiverRole: "JANITOR"})
	err = job.Handle(context.Background(), asynq.NewTask(TaskNotifyDispatch, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotificationJobRetriesDeliveryFailures(t *testing.T) {
	job := &NotificationJob{Deliverer: &recordingDeliverer{err: errors.New("smtp down")}}
	task, err := NewNotificationTask(notify.Message{ID: "m-3", ReceiverRole: rbac.RoleInventory})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestStockScanJobRecordsCounts(t *testing.T) {
	scanner := &stubScanner{result: workflow.ScanResult{
		Counts: map[inventory.StockStatus]int{
			inventory.StatusNormal: 3,
			inventory.StatusLow:    1,
		},
		Alerted: []inventory.Item{{ID: "A", CurrentStock: 2, MinimumStock: 5, MaximumStock: 50, Active: true}},
	}}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewStockScanJob(scanner, nil, metrics)

	task, err := NewStockScanTask(time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, 1, scanner.calls)
	count, err := testutil.GatherAndCount(reg, "wholesale_stock_scan_items_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStockScanJobPropagatesFailure(t *testing.T) {
	scanner := &stubScanner{err: errors.New("store unavailable")}
	job := NewStockScanJob(scanner, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskInventoryStockScan, nil))
	require.EqualError(t, err, "store unavailable")
}

func TestHealthReportsQueues(t *testing.T) {
	h := NewHandler(stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueNotifications: {Queue: QueueNotifications, Pending: 4, Failed: 1},
	}}, nil)
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []queueHealth{
		{Queue: QueueNotifications, Pending: 4, Failed: 1},
		{Queue: QueueInventory},
	}, body)
}

func TestHealthUnavailable(t *testing.T) {
	h := NewHandler(stubInspector{err: errors.New("dial tcp: refused")}, nil)
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
