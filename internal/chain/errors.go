package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind classifies an upstream failure for retry policy.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransient
	KindRateLimit
	KindOversized
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	case KindOversized:
		return "oversized"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Sentinel errors for the upstream taxonomy.
var (
	ErrTransient         = errors.New("transient network error")
	ErrRateLimited       = errors.New("rate limited")
	ErrOversizedResponse = errors.New("response too large")
	ErrNoEndpoints       = errors.New("no rpc endpoints configured")
)

// RateLimitError is a rate-limit rejection, optionally carrying the wait the
// provider asked for.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry in %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// AllEndpointsExhaustedError is returned when every endpoint in the pool failed
// a single operation. It unwraps to the last failure.
type AllEndpointsExhaustedError struct {
	Attempts int
	Last     error
}

func (e *AllEndpointsExhaustedError) Error() string {
	return fmt.Sprintf("all %d endpoints failed: %v", e.Attempts, e.Last)
}

func (e *AllEndpointsExhaustedError) Unwrap() error { return e.Last }

var retryHintPattern = regexp.MustCompile(`(?i)retry in\s*(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds|m|min|mins|minutes|h)?`)

// ParseRetryHint extracts a "retry in <N><unit>" wait from a provider message.
// A bare number is read as seconds.
func ParseRetryHint(msg string) (time.Duration, bool) {
	match := retryHintPattern.FindStringSubmatch(msg)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	var unit time.Duration
	switch strings.ToLower(match[2]) {
	case "ms":
		unit = time.Millisecond
	case "m", "min", "mins", "minutes":
		unit = time.Minute
	case "h":
		unit = time.Hour
	default:
		unit = time.Second
	}
	return time.Duration(value * float64(unit)), true
}

var (
	oversizedMarkers = []string{
		"query returned more than",
		"response size exceeded",
		"response is too big",
		"log response size exceeded",
		"block range is too wide",
		"block range too large",
		"exceed maximum block range",
		"too many results",
	}
	rateLimitMarkers = []string{
		"rate limit",
		"too many requests",
		"exceeded its compute units",
		"capacity exceeded",
		"request limit",
		"retry in",
	}
	transientMarkers = []string{
		"timeout",
		"connection reset",
		"connection refused",
		"eof",
		"bad gateway",
		"service unavailable",
		"gateway timeout",
		"internal error",
		"header not found",
	}
)

// Classify maps an error onto the retry taxonomy. The returned duration is the
// provider's hinted wait for rate-limit errors, zero otherwise.
func Classify(err error) (ErrorKind, time.Duration) {
	if err == nil {
		return KindUnknown, 0
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled, 0
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return KindRateLimit, rl.RetryAfter
	}
	if errors.Is(err, ErrOversizedResponse) {
		return KindOversized, 0
	}
	if errors.Is(err, ErrTransient) {
		return KindTransient, 0
	}

	msg := strings.ToLower(err.Error())
	hint, hasHint := ParseRetryHint(msg)

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return KindRateLimit, hint
		case httpErr.StatusCode == 413:
			return KindOversized, 0
		case httpErr.StatusCode >= 500:
			return KindTransient, 0
		}
	}

	if containsAny(msg, oversizedMarkers) && !hasHint {
		return KindOversized, 0
	}
	if containsAny(msg, rateLimitMarkers) {
		return KindRateLimit, hint
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == -32005 {
		// -32005 is used by providers for both range and rate limits; the
		// message checks above already picked out the range case.
		return KindRateLimit, hint
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient, 0
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient, 0
	}
	if containsAny(msg, transientMarkers) {
		return KindTransient, 0
	}

	return KindUnknown, 0
}

func containsAny(msg string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
