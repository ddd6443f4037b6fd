package poller

import (
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/lropoller/internal/domain/operation"
)

// Headers a server may use to suggest how long to wait before the next
// status check.
const (
	HeaderRetryAfterMs    = "retry-after-ms"
	HeaderXMsRetryAfterMs = "x-ms-retry-after-ms"
	HeaderRetryAfter      = "Retry-After"
)

// NextDelay returns how long to wait before the next status check. A server
// suggestion is honored only when it is longer than interval.
//
// The millisecond headers take priority over Retry-After. Only the first
// millisecond header present is considered; if its value is not a 32-bit
// integer the seconds header is tried instead.
func NextDelay(resp operation.Response, interval time.Duration) time.Duration {
	if resp == nil {
		return interval
	}

	if d, ok := serverDelay(resp); ok && d > interval {
		return d
	}
	return interval
}

func serverDelay(resp operation.Response) (time.Duration, bool) {
	for _, name := range []string{HeaderRetryAfterMs, HeaderXMsRetryAfterMs} {
		v, ok := resp.Header(name)
		if !ok {
			continue
		}
		if d, ok := parseDelay(v, time.Millisecond); ok {
			return d, true
		}
		break
	}

	if v, ok := resp.Header(HeaderRetryAfter); ok {
		return parseDelay(v, time.Second)
	}
	return 0, false
}

// parseDelay parses a non-negative integer count of unit. Values that do
// not fit in a 32-bit integer are rejected.
func parseDelay(v string, unit time.Duration) (time.Duration, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
