package operation

import "context"

// Response is the raw response of the most recent status check. The only
// thing the polling engine needs from it is header access.
type Response interface {
	// Header returns the value of the named header and whether it was present.
	// Names are looked up as written by the server.
	Header(name string) (string, bool)
}

// Operation is implemented by every concrete long-running operation.
// UpdateState performs exactly one status check against the remote system
// and reports its outcome. Implementations must not retain or mutate poller
// state; the returned State is the only channel back to the caller.
//
// Returning a Pending state means "call me again"; Success and Failure mean
// the operation is finished.
type Operation interface {
	UpdateState(ctx context.Context) (State, error)
}

// OperationFunc adapts an ordinary function to the Operation interface.
type OperationFunc func(ctx context.Context) (State, error)

// UpdateState calls f(ctx).
func (f OperationFunc) UpdateState(ctx context.Context) (State, error) { return f(ctx) }

// FailureFactory synthesizes the domain error for a failed operation whose
// status check did not supply one.
type FailureFactory interface {
	NewFailure(ctx context.Context, resp Response) error
}

// DefaultFailureFactory builds a FailedError with no code or message.
type DefaultFailureFactory struct{}

// NewFailure implements FailureFactory.
func (DefaultFailureFactory) NewFailure(_ context.Context, resp Response) error {
	return NewFailedError(resp, "", "")
}
