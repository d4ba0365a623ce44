package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64
	Module  string
	RefID   uuid.UUID
	ActorID string
	Action  ApprovalAction
	Note    string
	At      time.Time
}

// ApprovalRef derives a stable approval reference for a document number.
func ApprovalRef(module, number string) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(module+":"+number))
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if log.Module == "" {
		return errors.New("approval module required")
	}
	if log.ActorID == "" {
		return errors.New("approval actor required")
	}
	if log.RefID == uuid.Nil {
		return errors.New("approval ref id required")
	}
	if log.Action == "" {
		return errors.New("approval action required")
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, at)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err))
		return err
	}
	return nil
}

// LogApprovalRecorder writes approval history to a structured logger when no database is configured.
type LogApprovalRecorder struct {
	logger *slog.Logger
}

// NewLogApprovalRecorder constructs LogApprovalRecorder.
func NewLogApprovalRecorder(logger *slog.Logger) *LogApprovalRecorder {
	return &LogApprovalRecorder{logger: logger}
}

// Record emits the approval as an info log line.
func (r *LogApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil || r.logger == nil {
		return errors.New("approval recorder not initialised")
	}
	r.logger.InfoContext(ctx, "approval",
		slog.String("module", log.Module),
		slog.String("ref_id", log.RefID.String()),
		slog.String("actor_id", log.ActorID),
		slog.String("action", string(log.Action)),
		slog.String("note", log.Note),
	)
	return nil
}
