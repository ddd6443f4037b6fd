// Package timeutil provides time-related utilities and abstractions.
// It facilitates easier testing of time-dependent code and standardizes
// time-related operations across the application.
package timeutil

import (
	"context"
	"sync"
	"time"
)

// Provider defines an interface for time operations,
// allowing for easier testing by providing a way to mock time.
type Provider interface {
	// Now returns the current time.
	Now() time.Time

	// Wait blocks for the given duration or until ctx is done, whichever
	// comes first. It returns ctx.Err() when the wait was cut short.
	Wait(ctx context.Context, d time.Duration) error
}

// RealProvider is the default implementation of Provider that
// provides access to the actual system time.
type RealProvider struct{}

// Now returns the current time in UTC.
func (RealProvider) Now() time.Time { return time.Now().UTC() }

// Wait pauses the current goroutine for d unless ctx is done first.
func (RealProvider) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Mock is an implementation of Provider used for testing,
// allowing tests to control what time is returned. Waits never block;
// they advance the mock clock and are recorded.
type Mock struct {
	mu          sync.Mutex
	currentTime time.Time
	waits       []time.Duration
}

// Now returns the preset time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// SetNow directly sets the current time to the provided time.
func (m *Mock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the mock time forward by the specified duration.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// Wait records d and advances the clock. A done ctx is reported before
// any time passes.
func (m *Mock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits = append(m.waits, d)
	m.currentTime = m.currentTime.Add(d)
	return nil
}

// Waits returns every duration passed to Wait, in call order.
func (m *Mock) Waits() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.waits...)
}

// Default returns a Provider implementation that uses the real system time.
func Default() Provider { return RealProvider{} }

// NewMock creates a new mock time provider with the specified time.
func NewMock(t time.Time) *Mock { return &Mock{currentTime: t} }
