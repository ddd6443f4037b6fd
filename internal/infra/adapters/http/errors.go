package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahrav/lropoller/internal/domain/operation"
)

var (
	// ErrNoPollURL is returned when an initial response names no status URL.
	ErrNoPollURL = errors.New("response carries no polling URL")

	// ErrInvalidPollURL is returned when a status URL is not absolute.
	ErrInvalidPollURL = errors.New("invalid polling URL")
)

// StatusError is returned when a status check gets a non-2xx answer.
type StatusError struct {
	Response   *Response
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("status check returned %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("status check returned %d", e.StatusCode)
}

func newStatusError(resp *Response) *StatusError {
	code, msg := decodeErrorBody(resp.Body())
	return &StatusError{Response: resp, StatusCode: resp.StatusCode(), Code: code, Message: msg}
}

type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeErrorBody(body []byte) (code, message string) {
	if len(body) == 0 {
		return "", ""
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == nil {
		return "", ""
	}
	return eb.Error.Code, eb.Error.Message
}

var _ operation.FailureFactory = ErrorFactory{}

// ErrorFactory builds operation.FailedError values from the error object of
// an HTTP status body, when there is one.
type ErrorFactory struct{}

// NewFailure implements operation.FailureFactory.
func (ErrorFactory) NewFailure(_ context.Context, resp operation.Response) error {
	r, ok := resp.(*Response)
	if !ok {
		return operation.NewFailedError(resp, "", "")
	}
	code, msg := decodeErrorBody(r.Body())
	return operation.NewFailedError(resp, code, msg)
}
