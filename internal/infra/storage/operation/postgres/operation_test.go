package postgres

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/lropoller/internal/application/poller"
	"github.com/ahrav/lropoller/internal/domain/operation"
	"github.com/ahrav/lropoller/internal/infra/storage"
	"github.com/ahrav/lropoller/internal/infra/storage/testutil"
)

func setupStore(t *testing.T) (context.Context, *Store) {
	t.Helper()

	pool := testutil.SetupTestContainer(t)
	return context.Background(), NewStore(pool, testutil.NoOpTracer())
}

func TestRecord_Header(t *testing.T) {
	retry := 1500 * time.Millisecond
	rec := &Record{Status: StatusInProgress, RetryAfter: &retry}

	v, ok := rec.Header("Retry-After-Ms")
	assert.True(t, ok)
	assert.Equal(t, "1500", v)

	v, ok = rec.Header(HeaderStatus)
	assert.True(t, ok)
	assert.Equal(t, "in_progress", v)

	_, ok = rec.Header("Retry-After")
	assert.False(t, ok)

	_, ok = (&Record{}).Header(HeaderRetryAfterMs)
	assert.False(t, ok)

	assert.Equal(t, 1500*time.Millisecond, poller.NextDelay(rec, time.Second))
}

func TestStateFor(t *testing.T) {
	testCases := []struct {
		desc       string
		rec        *Record
		wantStatus operation.Status
		wantCause  string
	}{
		{desc: "pending", rec: &Record{Status: StatusPending}, wantStatus: operation.StatusPending},
		{desc: "in progress", rec: &Record{Status: StatusInProgress}, wantStatus: operation.StatusPending},
		{desc: "completed", rec: &Record{Status: StatusCompleted}, wantStatus: operation.StatusSucceeded},
		{
			desc:       "failed with message",
			rec:        &Record{Status: StatusFailed, ErrorCode: "DiskFull", ErrorMessage: "no space left"},
			wantStatus: operation.StatusFailed,
			wantCause:  "operation failed: DiskFull: no space left",
		},
		{desc: "failed without message", rec: &Record{Status: StatusFailed}, wantStatus: operation.StatusFailed},
		{
			desc:       "cancelled",
			rec:        &Record{Status: StatusCancelled},
			wantStatus: operation.StatusFailed,
			wantCause:  "operation failed: Cancelled: operation was cancelled",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			state, err := stateFor(tc.rec)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, state.Status())
			assert.Same(t, tc.rec, state.Response())

			if tc.wantCause == "" {
				assert.NoError(t, state.Cause())
				return
			}
			assert.EqualError(t, state.Cause(), tc.wantCause)
			assert.ErrorIs(t, state.Cause(), operation.ErrOperationFailed)
		})
	}
}

func TestStateFor_UnknownStatus(t *testing.T) {
	_, err := stateFor(&Record{ID: 7, Status: "paused"})
	assert.ErrorContains(t, err, `unknown status "paused"`)
}

func TestStore_CreateAndFind(t *testing.T) {
	t.Parallel()
	ctx, store := setupStore(t)

	id, err := store.Create(ctx, "Database.Restore")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	rec, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Database.Restore", rec.Type)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.RetryAfter)
	assert.Nil(t, rec.StartedAt)
	assert.Nil(t, rec.CompletedAt)
}

func TestStore_Create_EmptyType(t *testing.T) {
	store := NewStore(nil, testutil.NoOpTracer())

	_, err := store.Create(context.Background(), "")
	var vErr operation.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestStore_Update_RetryAfterOutOfRange(t *testing.T) {
	store := NewStore(nil, testutil.NoOpTracer())

	testCases := []struct {
		desc  string
		retry time.Duration
	}{
		{desc: "negative", retry: -time.Second},
		{desc: "25 days", retry: 25 * 24 * time.Hour},
		{desc: "one past the limit", retry: (math.MaxInt32 + 1) * time.Millisecond},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := store.Update(context.Background(), 1, Update{Status: StatusInProgress, RetryAfter: tc.retry})

			var vErr operation.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "retry_after", vErr.Field)
		})
	}
}

func TestStore_Update(t *testing.T) {
	t.Parallel()
	ctx, store := setupStore(t)

	id, err := store.Create(ctx, "Database.Restore")
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, id, Update{Status: StatusInProgress, RetryAfter: 2 * time.Second}))

	rec, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
	require.NotNil(t, rec.RetryAfter)
	assert.Equal(t, 2*time.Second, *rec.RetryAfter)
	assert.NotNil(t, rec.StartedAt)
	assert.Nil(t, rec.CompletedAt)

	maxRetry := math.MaxInt32 * time.Millisecond
	require.NoError(t, store.Update(ctx, id, Update{Status: StatusInProgress, RetryAfter: maxRetry}))
	rec, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.RetryAfter)
	assert.Equal(t, maxRetry, *rec.RetryAfter)

	err = store.Update(ctx, id, Update{Status: StatusInProgress, RetryAfter: 30 * 24 * time.Hour})
	var vErr operation.ValidationError
	require.ErrorAs(t, err, &vErr)

	require.NoError(t, store.Update(ctx, id, Update{
		Status: StatusCompleted,
		Result: map[string]any{"backup_id": "bk-42"},
	}))

	rec, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Nil(t, rec.RetryAfter)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, "bk-42", rec.Result["backup_id"])
}

func TestStore_NotFound(t *testing.T) {
	t.Parallel()
	ctx, store := setupStore(t)

	_, err := store.FindByID(ctx, 999999)
	assert.ErrorIs(t, err, ErrOperationNotFound)

	err = store.Update(ctx, 999999, Update{Status: StatusFailed})
	assert.ErrorIs(t, err, ErrOperationNotFound)

	_, err = store.Operation(999999).UpdateState(ctx)
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestStatusOperation_PollsUntilCompleted(t *testing.T) {
	t.Parallel()
	ctx, store := setupStore(t)

	id, err := store.Create(ctx, "Database.Restore")
	require.NoError(t, err)
	rec, err := store.FindByID(ctx, id)
	require.NoError(t, err)

	p, err := poller.New("Database.Restore", store.Operation(id), rec)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	results := p.WaitForCompletionAsync(waitCtx, 20*time.Millisecond)

	require.NoError(t, store.Update(ctx, id, Update{Status: StatusInProgress, RetryAfter: 50 * time.Millisecond}))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Update(ctx, id, Update{Status: StatusCompleted, Result: map[string]any{"rows": 10}}))

	res := <-results
	require.NoError(t, res.Err)
	final, ok := res.Response.(*Record)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, float64(10), final.Result["rows"])
}

func TestStatusOperation_PollsUntilFailed(t *testing.T) {
	t.Parallel()
	ctx, store := setupStore(t)

	id, err := store.Create(ctx, "Database.Restore")
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, id, Update{
		Status:       StatusFailed,
		ErrorCode:    "ChecksumMismatch",
		ErrorMessage: "backup archive is corrupt",
	}))

	rec, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	p, err := poller.New("Database.Restore", store.Operation(id), rec)
	require.NoError(t, err)

	_, err = p.WaitForCompletion(ctx)

	var failedErr *operation.FailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, "ChecksumMismatch", failedErr.Code)
	assert.True(t, p.Completed())
}

func TestMigrate_FileSourceAfterEmbedded(t *testing.T) {
	t.Parallel()
	pool := testutil.SetupTestContainer(t)

	require.NoError(t, storage.Migrate(pool, ""))
	require.NoError(t, storage.Migrate(pool, "file://"+testutil.MigrationsDir()))
}
