// Package poller drives long-running operations to completion. A Poller
// repeatedly asks an operation.Operation for its state, honors the delay the
// server suggests between checks, and turns the terminal state into either
// the final response or an error.
package poller

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/lropoller/internal/domain/operation"
	"github.com/ahrav/lropoller/pkg/common/logger"
	"github.com/ahrav/lropoller/pkg/common/timeutil"
)

// DefaultInterval is the minimum delay between two status checks when none
// is configured.
const DefaultInterval = time.Second

const instrumentationName = "github.com/ahrav/lropoller/internal/application/poller"

// Result is delivered by WaitForCompletionAsync once the operation finishes,
// fails, or the wait is cancelled.
type Result struct {
	Response operation.Response
	Err      error
}

// Option configures a Poller.
type Option func(*Poller)

// WithTracer sets the tracer used to open the status check span.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Poller) { p.tracer = tracer }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Poller) { p.logger = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithClock replaces the time source used for waits between checks.
func WithClock(clock timeutil.Provider) Option {
	return func(p *Poller) { p.clock = clock }
}

// WithInterval sets the interval used by WaitForCompletion.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithAttributes adds attributes to every status check span.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(p *Poller) { p.attrs = append(p.attrs, attrs...) }
}

// WithFailureFactory sets the factory used to build the error for a failed
// operation whose state carries no cause.
func WithFailureFactory(f operation.FailureFactory) Option {
	return func(p *Poller) { p.failures = f }
}

// Poller tracks a single long-running operation.
//
// A Poller is not safe for concurrent use. Once Completed reports true it
// never reports false again.
type Poller struct {
	name     string
	scope    string
	op       operation.Operation
	interval time.Duration
	attrs    []attribute.KeyValue
	failures operation.FailureFactory

	tracer  trace.Tracer
	logger  *logger.Logger
	metrics Metrics
	clock   timeutil.Provider

	completed bool
	resp      operation.Response
	err       error
}

// New creates a Poller for the operation type name. initial is the response
// that started the operation; it seeds Response until the first status check.
func New(name string, op operation.Operation, initial operation.Response, opts ...Option) (*Poller, error) {
	if name == "" {
		return nil, operation.NewValidationError("name", "cannot be empty")
	}
	if op == nil {
		return nil, operation.NewValidationError("operation", "cannot be nil")
	}
	if initial == nil {
		return nil, operation.NewValidationError("response", "cannot be nil")
	}

	p := &Poller{
		name:     name,
		scope:    name + ".UpdateStatus",
		op:       op,
		interval: DefaultInterval,
		failures: operation.DefaultFailureFactory{},
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.Noop(),
		metrics:  noopMetrics{},
		clock:    timeutil.Default(),
		resp:     initial,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.interval <= 0 {
		return nil, operation.NewValidationError("interval", "must be positive")
	}
	p.logger = p.logger.With("component", "poller", "operation", name)

	return p, nil
}

// Name returns the operation type name.
func (p *Poller) Name() string { return p.name }

// Completed reports whether a terminal state has been observed.
func (p *Poller) Completed() bool { return p.completed }

// Response returns the response of the latest status check that returned a
// state, including a failed one, or the initial response if there has been
// none.
func (p *Poller) Response() operation.Response { return p.resp }

// Err returns the failure recorded for the operation, if it failed.
func (p *Poller) Err() error { return p.err }

// UpdateStatus performs one status check.
//
// A pending operation returns its latest response. A succeeded operation
// returns the final response and marks the poller completed. A failed
// operation marks the poller completed and returns the first failure it
// observed. Errors from the operation itself, including cancellation, are
// returned unchanged and leave the poller untouched.
func (p *Poller) UpdateStatus(ctx context.Context) (operation.Response, error) {
	ctx, span := p.tracer.Start(ctx, p.scope, trace.WithAttributes(p.attrs...))
	defer span.End()
	span.AddEvent("started")

	state, err := p.op.UpdateState(ctx)
	if err == nil && state.IsZero() {
		err = operation.NewValidationError("state", "operation returned a zero state")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status check failed")
		p.metrics.IncStatusCheck(ctx, p.name, OutcomeError)
		p.logger.Debug(ctx, "status check failed", "error", err)
		return nil, err
	}

	p.resp = state.Response()
	span.SetAttributes(attribute.String("operation.status", state.Status().String()))

	switch state.Status() {
	case operation.StatusSucceeded:
		p.completed = true
		span.SetStatus(codes.Ok, "operation succeeded")
		p.metrics.IncStatusCheck(ctx, p.name, OutcomeSucceeded)
		p.logger.Info(ctx, "operation succeeded")
		return p.resp, nil

	case operation.StatusFailed:
		p.completed = true
		if p.err == nil {
			p.err = p.failureFor(ctx, state)
		}
		span.RecordError(p.err)
		span.SetStatus(codes.Error, "operation failed")
		p.metrics.IncStatusCheck(ctx, p.name, OutcomeFailed)
		p.logger.Warn(ctx, "operation failed", "error", p.err)
		return nil, p.err

	default:
		p.metrics.IncStatusCheck(ctx, p.name, OutcomePending)
		p.logger.Debug(ctx, "operation pending")
		return p.resp, nil
	}
}

func (p *Poller) failureFor(ctx context.Context, state operation.State) error {
	if cause := state.Cause(); cause != nil {
		return cause
	}
	if err := p.failures.NewFailure(ctx, state.Response()); err != nil {
		return err
	}
	return operation.NewFailedError(state.Response(), "", "")
}

// WaitForCompletion polls with the configured interval until the operation
// completes or ctx is done.
func (p *Poller) WaitForCompletion(ctx context.Context) (operation.Response, error) {
	return p.WaitForCompletionWithInterval(ctx, p.interval)
}

// WaitForCompletionWithInterval polls until the operation completes or ctx is
// done. Between checks it waits NextDelay(resp, interval). There is no limit
// on the number of checks; bound the wait with a ctx deadline.
func (p *Poller) WaitForCompletionWithInterval(ctx context.Context, interval time.Duration) (operation.Response, error) {
	if interval <= 0 {
		return nil, operation.NewValidationError("interval", "must be positive")
	}

	start := p.clock.Now()
	for {
		resp, err := p.UpdateStatus(ctx)
		if err != nil {
			p.observeWait(ctx, start, err)
			return nil, err
		}
		if p.completed {
			p.observeWait(ctx, start, nil)
			return resp, nil
		}

		delay := NextDelay(resp, interval)
		p.metrics.ObservePollDelay(ctx, p.name, delay)
		p.logger.Debug(ctx, "waiting before next status check", "delay", delay.String())

		if err := p.clock.Wait(ctx, delay); err != nil {
			p.observeWait(ctx, start, err)
			return nil, err
		}
	}
}

// WaitForCompletionAsync runs WaitForCompletionWithInterval on its own
// goroutine. The returned channel receives exactly one Result and is then
// closed. The Poller must not be used until the Result arrives.
func (p *Poller) WaitForCompletionAsync(ctx context.Context, interval time.Duration) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		resp, err := p.WaitForCompletionWithInterval(ctx, interval)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}

func (p *Poller) observeWait(ctx context.Context, start time.Time, err error) {
	outcome := OutcomeSucceeded
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = OutcomeCanceled
	case p.completed && errors.Is(err, p.err):
		outcome = OutcomeFailed
	default:
		outcome = OutcomeError
	}
	p.metrics.ObserveWaitDuration(ctx, p.name, outcome, p.clock.Now().Sub(start))
}
