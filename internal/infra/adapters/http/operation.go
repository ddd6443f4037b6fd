package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/ahrav/lropoller/internal/domain/operation"
	"github.com/ahrav/lropoller/pkg/common/logger"
)

// Headers used by status-check requests and initial responses.
const (
	HeaderOperationLocation   = "Operation-Location"
	HeaderAzureAsyncOperation = "Azure-AsyncOperation"
	HeaderLocation            = "Location"
	HeaderClientRequestID     = "x-ms-client-request-id"
)

const maxBodySize = 4 << 20

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ operation.Operation = (*StatusOperation)(nil)

// StatusOperation checks a long-running operation by issuing a GET to its
// status URL.
//
// A body whose "status" is not terminal is pending. "Succeeded", or a 2xx
// answer other than 202 without a status field, is a success. A 202 answer
// is pending unless its body carries a terminal status.
// "Failed", "Canceled" and "Cancelled" are failures; the body's "error"
// object, when present, becomes the failure cause.
type StatusOperation struct {
	client  Doer
	pollURL string
	log     *logger.Logger
}

// NewStatusOperation creates a StatusOperation for an absolute status URL.
func NewStatusOperation(client Doer, pollURL string, log *logger.Logger) (*StatusOperation, error) {
	if client == nil {
		return nil, operation.NewValidationError("client", "cannot be nil")
	}
	u, err := url.Parse(pollURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPollURL, pollURL)
	}
	if log == nil {
		log = logger.Noop()
	}
	return &StatusOperation{client: client, pollURL: u.String(), log: log}, nil
}

// PollURL returns the status URL advertised by the response that started an
// operation. Operation-Location and Azure-AsyncOperation are preferred over
// Location. Relative URLs are resolved against the request URL.
func PollURL(initial *http.Response) (string, error) {
	for _, h := range []string{HeaderOperationLocation, HeaderAzureAsyncOperation, HeaderLocation} {
		v := strings.TrimSpace(initial.Header.Get(h))
		if v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidPollURL, h, err)
		}
		if !u.IsAbs() && initial.Request != nil && initial.Request.URL != nil {
			u = initial.Request.URL.ResolveReference(u)
		}
		return u.String(), nil
	}
	return "", ErrNoPollURL
}

// URL returns the status URL.
func (o *StatusOperation) URL() string { return o.pollURL }

type statusBody struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UpdateState implements operation.Operation.
func (o *StatusOperation) UpdateState(ctx context.Context) (operation.State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.pollURL, nil)
	if err != nil {
		return operation.State{}, fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderClientRequestID, uuid.NewString())

	raw, err := o.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return operation.State{}, ctxErr
		}
		return operation.State{}, fmt.Errorf("status request: %w", err)
	}
	defer raw.Body.Close()

	body, err := io.ReadAll(io.LimitReader(raw.Body, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return operation.State{}, ctxErr
		}
		return operation.State{}, fmt.Errorf("reading status body: %w", err)
	}
	resp := NewResponse(raw, body)

	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		return operation.State{}, newStatusError(resp)
	}

	var sb statusBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &sb); err != nil {
			if raw.StatusCode == http.StatusAccepted {
				return operation.Pending(resp)
			}
			return operation.State{}, fmt.Errorf("decoding status body: %w", err)
		}
	}
	if raw.StatusCode == http.StatusAccepted && sb.Status == "" {
		return operation.Pending(resp)
	}

	o.log.Debug(ctx, "status received", "url", o.pollURL, "status", sb.Status, "status_code", raw.StatusCode)

	switch {
	case sb.Status == "", strings.EqualFold(sb.Status, "Succeeded"):
		return operation.Success(resp)
	case strings.EqualFold(sb.Status, "Failed"),
		strings.EqualFold(sb.Status, "Canceled"),
		strings.EqualFold(sb.Status, "Cancelled"):
		var cause error
		if sb.Error != nil {
			cause = operation.NewFailedError(resp, sb.Error.Code, sb.Error.Message)
		}
		return operation.Failure(resp, cause)
	default:
		return operation.Pending(resp)
	}
}
