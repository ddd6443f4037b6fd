package operation

// Status represents the outcome reported by a single status check.
type Status int

// Statuses a State can carry. Constructors never produce StatusUnknown.
const (
	StatusUnknown Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status ends the operation.
func (s Status) IsTerminal() bool { return s == StatusSucceeded || s == StatusFailed }

// State is the immutable result of one status check. It can only be built
// through Success, Failure and Pending, which guarantee a non-nil response and
// a consistent status.
type State struct {
	resp   Response
	status Status
	cause  error
}

// Success reports a terminal, successful operation.
func Success(resp Response) (State, error) {
	return newState(resp, StatusSucceeded, nil)
}

// Failure reports a terminal, failed operation. cause may be nil, in which
// case the poller synthesizes one from the response.
func Failure(resp Response, cause error) (State, error) {
	return newState(resp, StatusFailed, cause)
}

// Pending reports an operation that has not finished yet. The response is
// used to compute the delay before the next check.
func Pending(resp Response) (State, error) {
	return newState(resp, StatusPending, nil)
}

func newState(resp Response, status Status, cause error) (State, error) {
	if resp == nil {
		return State{}, NewValidationError("response", "cannot be nil")
	}
	return State{resp: resp, status: status, cause: cause}, nil
}

// Response returns the raw response of the status check.
func (s State) Response() Response { return s.resp }

// Status returns the outcome of the status check.
func (s State) Status() Status { return s.status }

// Completed reports whether the operation reached a terminal outcome.
func (s State) Completed() bool { return s.status.IsTerminal() }

// Succeeded reports whether the operation completed successfully.
// It is only meaningful when Completed is true.
func (s State) Succeeded() bool { return s.status == StatusSucceeded }

// Cause returns the failure supplied with a Failure state, if any.
func (s State) Cause() error { return s.cause }

// IsZero reports whether the State was built without one of the constructors.
func (s State) IsZero() bool { return s.resp == nil || s.status == StatusUnknown }
