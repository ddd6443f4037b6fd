// Package http provides an HTTP status source for long-running operations:
// a retrying, instrumented client and an operation.Operation that polls a
// status URL.
package http

import (
	"net/http"

	"github.com/ahrav/lropoller/internal/domain/operation"
)

var _ operation.Response = (*Response)(nil)

// Response adapts an *http.Response and its already-read body to
// operation.Response.
type Response struct {
	raw  *http.Response
	body []byte
}

// NewResponse wraps resp. The body must have been read and closed by the
// caller; it is kept in memory.
func NewResponse(resp *http.Response, body []byte) *Response {
	return &Response{raw: resp, body: body}
}

// Header returns the first value of the named header. The name is looked up
// exactly as given first, then in canonical form, so lowercase names such as
// "retry-after-ms" match regardless of how the server spelled them.
func (r *Response) Header(name string) (string, bool) {
	if v, ok := r.raw.Header[name]; ok && len(v) > 0 {
		return v[0], true
	}
	v := r.raw.Header.Values(name)
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.raw.StatusCode }

// Body returns the response body.
func (r *Response) Body() []byte { return r.body }

// Raw returns the underlying *http.Response. Its body has been consumed.
func (r *Response) Raw() *http.Response { return r.raw }
