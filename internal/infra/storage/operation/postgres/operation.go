// Package postgres provides a Postgres-backed status source for long-running
// operations tracked in the operations table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/lropoller/internal/domain/operation"
	"github.com/ahrav/lropoller/internal/infra/storage"
)

// Status is the lifecycle status stored for an operation row.
type Status string

// Statuses accepted by the operations table.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status ends the operation.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrOperationNotFound is returned when no row matches the requested id.
var ErrOperationNotFound = errors.New("operation not found")

// Headers exposed by a Record.
const (
	HeaderRetryAfterMs = "retry-after-ms"
	HeaderStatus       = "operation-status"
)

var _ operation.Response = (*Record)(nil)

// Record is one row of the operations table. It doubles as the response of
// a status check: the stored retry hint is exposed as the retry-after-ms
// header.
type Record struct {
	ID           int64
	Type         string
	Status       Status
	Result       map[string]any
	ErrorCode    string
	ErrorMessage string
	RetryAfter   *time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Header implements operation.Response. Names are matched case-insensitively.
func (r *Record) Header(name string) (string, bool) {
	switch {
	case strings.EqualFold(name, HeaderRetryAfterMs):
		if r.RetryAfter == nil {
			return "", false
		}
		return strconv.FormatInt(r.RetryAfter.Milliseconds(), 10), true
	case strings.EqualFold(name, HeaderStatus):
		return string(r.Status), true
	}
	return "", false
}

// Update describes a status transition written by the worker that owns an
// operation.
type Update struct {
	Status       Status
	Result       map[string]any
	ErrorCode    string
	ErrorMessage string
	// RetryAfter is the delay pollers should wait before checking again.
	// Zero clears it. It is stored in milliseconds as a 32-bit integer.
	RetryAfter time.Duration
}

// Store reads and writes rows of the operations table.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewStore creates a Store backed by PostgreSQL.
func NewStore(pool *pgxpool.Pool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

const createOperation = `
INSERT INTO operations (operation_type, status)
VALUES ($1, 'pending')
RETURNING id`

// Create inserts a pending operation and returns its id.
func (s *Store) Create(ctx context.Context, opType string) (int64, error) {
	if opType == "" {
		return 0, operation.NewValidationError("operation_type", "cannot be empty")
	}

	var id int64
	err := storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.Create",
		[]attribute.KeyValue{attribute.String("operation.type", opType)},
		func(ctx context.Context) error {
			return s.pool.QueryRow(ctx, createOperation, opType).Scan(&id)
		})
	return id, err
}

const updateOperation = `
UPDATE operations SET
    status         = $2,
    result         = $3,
    error_code     = NULLIF($4, ''),
    error_message  = NULLIF($5, ''),
    retry_after_ms = NULLIF($6::INTEGER, 0),
    updated_at     = now(),
    started_at     = CASE WHEN $2 <> 'pending' AND started_at IS NULL THEN now() ELSE started_at END,
    completed_at   = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END
WHERE id = $1`

// Update writes a status transition. It returns ErrOperationNotFound when
// the row does not exist.
func (s *Store) Update(ctx context.Context, id int64, u Update) error {
	if u.RetryAfter < 0 || u.RetryAfter.Milliseconds() > math.MaxInt32 {
		return operation.NewValidationError("retry_after", "must be between 0 and 2147483647ms")
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("operation.id", id),
		attribute.String("operation.status", string(u.Status)),
	}

	return storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.Update", attrs, func(ctx context.Context) error {
		var resultJSON []byte
		if u.Result != nil {
			var err error
			if resultJSON, err = json.Marshal(u.Result); err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
		}

		tag, err := s.pool.Exec(ctx, updateOperation,
			id,
			string(u.Status),
			resultJSON,
			u.ErrorCode,
			u.ErrorMessage,
			int32(u.RetryAfter.Milliseconds()),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrOperationNotFound
		}
		return nil
	})
}

const findOperationByID = `
SELECT id, operation_type, status, result, error_code, error_message,
       retry_after_ms, created_at, updated_at, started_at, completed_at
FROM operations
WHERE id = $1`

// FindByID returns the operation row with the given id.
func (s *Store) FindByID(ctx context.Context, id int64) (*Record, error) {
	attrs := []attribute.KeyValue{attribute.Int64("operation.id", id)}

	var rec *Record
	err := storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.FindByID", attrs, func(ctx context.Context) error {
		var (
			status                 string
			result                 []byte
			errorCode, errorMsg    pgtype.Text
			retryAfterMs           pgtype.Int4
			startedAt, completedAt pgtype.Timestamptz
			r                      Record
		)
		err := s.pool.QueryRow(ctx, findOperationByID, id).Scan(
			&r.ID, &r.Type, &status, &result, &errorCode, &errorMsg,
			&retryAfterMs, &r.CreatedAt, &r.UpdatedAt, &startedAt, &completedAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOperationNotFound
			}
			return err
		}

		r.Status = Status(status)
		r.ErrorCode = errorCode.String
		r.ErrorMessage = errorMsg.String
		if retryAfterMs.Valid {
			d := time.Duration(retryAfterMs.Int32) * time.Millisecond
			r.RetryAfter = &d
		}
		if startedAt.Valid {
			t := startedAt.Time
			r.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		if len(result) > 0 {
			if err := json.Unmarshal(result, &r.Result); err != nil {
				return fmt.Errorf("decoding result: %w", err)
			}
		}

		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Operation returns the status-check contract for the row with the given id.
func (s *Store) Operation(id int64) *StatusOperation {
	return &StatusOperation{store: s, id: id}
}

var _ operation.Operation = (*StatusOperation)(nil)

// StatusOperation checks an operation by reading its row.
// pending and in_progress rows are pending; completed rows succeed; failed
// and cancelled rows fail with the stored error code and message.
type StatusOperation struct {
	store *Store
	id    int64
}

// UpdateState implements operation.Operation.
func (o *StatusOperation) UpdateState(ctx context.Context) (operation.State, error) {
	rec, err := o.store.FindByID(ctx, o.id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return operation.State{}, ctxErr
		}
		return operation.State{}, err
	}
	return stateFor(rec)
}

func stateFor(rec *Record) (operation.State, error) {
	switch rec.Status {
	case StatusCompleted:
		return operation.Success(rec)
	case StatusFailed, StatusCancelled:
		var cause error
		if rec.ErrorCode != "" || rec.ErrorMessage != "" {
			cause = operation.NewFailedError(rec, rec.ErrorCode, rec.ErrorMessage)
		} else if rec.Status == StatusCancelled {
			cause = operation.NewFailedError(rec, "Cancelled", "operation was cancelled")
		}
		return operation.Failure(rec, cause)
	case StatusPending, StatusInProgress:
		return operation.Pending(rec)
	default:
		return operation.State{}, fmt.Errorf("operation %d has unknown status %q", rec.ID, rec.Status)
	}
}
