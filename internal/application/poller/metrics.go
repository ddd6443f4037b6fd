package poller

import (
	"context"
	"time"
)

// Outcomes recorded against status checks and waits.
const (
	OutcomePending   = "pending"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
	OutcomeCanceled  = "canceled"
)

// Metrics defines metrics for long-running operation polling.
type Metrics interface {
	// IncStatusCheck increments the count of status checks for an operation
	// type, labeled with the outcome of the check.
	IncStatusCheck(ctx context.Context, operationName string, outcome string)

	// ObservePollDelay records the delay chosen before the next status check.
	ObservePollDelay(ctx context.Context, operationName string, delay time.Duration)

	// ObserveWaitDuration records how long a WaitForCompletion call ran.
	ObserveWaitDuration(ctx context.Context, operationName string, outcome string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncStatusCheck(context.Context, string, string) {}
func (noopMetrics) ObservePollDelay(context.Context, string, time.Duration) {}
func (noopMetrics) ObserveWaitDuration(context.Context, string, string, time.Duration) {}
