package operation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerResponse map[string]string

func (h headerResponse) Header(name string) (string, bool) {
	v, ok := h[name]
	return v, ok
}

type statusResponse struct {
	headerResponse
	code int
}

func (r statusResponse) StatusCode() int { return r.code }

func TestStatusString(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusSucceeded, "succeeded"},
		{StatusFailed, "failed"},
		{StatusUnknown, "unknown"},
		{Status(42), "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.status.String())
		})
	}
}

func TestStateConstructors(t *testing.T) {
	resp := headerResponse{}
	cause := errors.New("quota exhausted")

	tests := []struct {
		name          string
		build         func() (State, error)
		wantStatus    Status
		wantCompleted bool
		wantSucceeded bool
		wantCause     error
	}{
		{
			name:          "success",
			build:         func() (State, error) { return Success(resp) },
			wantStatus:    StatusSucceeded,
			wantCompleted: true,
			wantSucceeded: true,
		},
		{
			name:          "failure with cause",
			build:         func() (State, error) { return Failure(resp, cause) },
			wantStatus:    StatusFailed,
			wantCompleted: true,
			wantCause:     cause,
		},
		{
			name:          "failure without cause",
			build:         func() (State, error) { return Failure(resp, nil) },
			wantStatus:    StatusFailed,
			wantCompleted: true,
		},
		{
			name:       "pending",
			build:      func() (State, error) { return Pending(resp) },
			wantStatus: StatusPending,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state, err := tc.build()
			require.NoError(t, err)

			assert.Equal(t, tc.wantStatus, state.Status())
			assert.Equal(t, tc.wantCompleted, state.Completed())
			assert.Equal(t, tc.wantSucceeded, state.Succeeded())
			assert.Equal(t, tc.wantCause, state.Cause())
			assert.Equal(t, resp, state.Response())
			assert.False(t, state.IsZero())
		})
	}
}

func TestStateConstructors_NilResponse(t *testing.T) {
	tests := []struct {
		name  string
		build func() (State, error)
	}{
		{"success", func() (State, error) { return Success(nil) }},
		{"failure", func() (State, error) { return Failure(nil, errors.New("boom")) }},
		{"pending", func() (State, error) { return Pending(nil) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state, err := tc.build()
			require.Error(t, err)

			var validationErr ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "response", validationErr.Field)
			assert.True(t, state.IsZero())
			assert.Equal(t, State{}, state)
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("interval", "must be positive")
	assert.Equal(t, "validation error on field 'interval': must be positive", err.Error())
	assert.Equal(t, "interval", err.Field)
	assert.Equal(t, "must be positive", err.Message)
}

func TestFailedError(t *testing.T) {
	tests := []struct {
		name     string
		err      *FailedError
		expected string
	}{
		{
			name:     "bare",
			err:      NewFailedError(headerResponse{}, "", ""),
			expected: "operation failed",
		},
		{
			name:     "code and message",
			err:      NewFailedError(headerResponse{}, "Conflict", "resource is locked"),
			expected: "operation failed: Conflict: resource is locked",
		},
		{
			name:     "message only",
			err:      NewFailedError(headerResponse{}, "", "disk full"),
			expected: "operation failed: disk full",
		},
		{
			name:     "code only",
			err:      NewFailedError(headerResponse{}, "InternalError", ""),
			expected: "operation failed: InternalError",
		},
		{
			name:     "response with status code",
			err:      NewFailedError(statusResponse{code: 200}, "Canceled", ""),
			expected: "operation failed (status 200): Canceled",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
			assert.ErrorIs(t, tc.err, ErrOperationFailed)
		})
	}
}

func TestDefaultFailureFactory(t *testing.T) {
	resp := headerResponse{"x-request-id": "abc"}
	err := DefaultFailureFactory{}.NewFailure(context.Background(), resp)

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, resp, failed.Response)
	assert.ErrorIs(t, err, ErrOperationFailed)
}

func TestOperationFunc(t *testing.T) {
	resp := headerResponse{}
	op := OperationFunc(func(ctx context.Context) (State, error) { return Pending(resp) })

	state, err := op.UpdateState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, state.Status())
}
