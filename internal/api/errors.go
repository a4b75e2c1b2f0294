package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	graphql "github.com/hasura/go-graphql-client"
)

// NotFoundError indicates the queried entity vanished upstream. It is never
// retried; collectors skip the missing branch and keep going.
type NotFoundError struct {
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found upstream: %v", e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type failureKind int

const (
	failureTransient failureKind = iota
	failureRateLimited
	failureNotFound
)

// rateLimitMarkers are the structured type/code strings GitHub uses to flag
// rate limiting in GraphQL error bodies and extensions.
var rateLimitMarkers = map[string]bool{
	"RATE_LIMITED":         true,
	"rate_limited":         true,
	"RATE_LIMIT":           true,
	"SECONDARY_RATE_LIMIT": true,
	"secondary_rate_limit": true,
	"EXCEEDED_RATE_LIMIT":  true,
	"GRAPHQL_RATE_LIMITED": true,
}

var notFoundMarkers = map[string]bool{
	"NOT_FOUND": true,
	"not_found": true,
}

// classify maps an execution error to the retry taxonomy. resp carries the
// last HTTP response seen on this connection, if any.
func classify(err error, resp *ResponseInfo) failureKind {
	var gqlErrs graphql.Errors
	if errors.As(err, &gqlErrs) {
		for _, ge := range gqlErrs {
			if matchesMarker(ge.Extensions, rateLimitMarkers) ||
				strings.Contains(strings.ToLower(ge.Message), "rate limit") {
				return failureRateLimited
			}
			if matchesMarker(ge.Extensions, notFoundMarkers) ||
				strings.Contains(ge.Message, "Could not resolve") {
				return failureNotFound
			}
		}
		return failureTransient
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return failureNotFound
		case http.StatusForbidden, http.StatusTooManyRequests:
			if resp.Header.Get("Retry-After") != "" ||
				resp.Header.Get("X-RateLimit-Remaining") == "0" {
				return failureRateLimited
			}
		}
	}

	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return failureRateLimited
	}
	return failureTransient
}

func matchesMarker(extensions map[string]interface{}, markers map[string]bool) bool {
	for _, key := range []string{"type", "code"} {
		if v, ok := extensions[key]; ok {
			if s, ok := v.(string); ok && markers[s] {
				return true
			}
		}
	}
	return false
}

// rateLimitHint extracts a wait duration from a rate-limited response. It
// checks, in order: the Retry-After header, the X-RateLimit-Reset header,
// and delay/reset extension fields on the GraphQL errors. The second return
// is false when no parsable hint was found. The caller still enforces the
// default floor regardless of the hint.
func rateLimitHint(header http.Header, errs graphql.Errors, now time.Time) (time.Duration, bool) {
	if header != nil {
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second, true
			}
			if t, err := http.ParseTime(v); err == nil {
				return t.Sub(now), true
			}
		}
		if v := header.Get("X-RateLimit-Reset"); v != "" {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.Unix(unix, 0).Sub(now), true
			}
		}
	}

	for _, ge := range errs {
		for _, key := range []string{"retryAfter", "retry_after"} {
			if d, ok := secondsValue(ge.Extensions[key]); ok {
				return d, true
			}
		}
		for _, key := range []string{"resetAt", "reset_at"} {
			if s, ok := ge.Extensions[key].(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					return t.Sub(now), true
				}
			}
		}
	}

	return 0, false
}

func secondsValue(v interface{}) (time.Duration, bool) {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second)), true
	case int:
		return time.Duration(n) * time.Second, true
	case string:
		if secs, err := strconv.Atoi(n); err == nil {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}

func graphErrors(err error) graphql.Errors {
	var gqlErrs graphql.Errors
	errors.As(err, &gqlErrs)
	return gqlErrs
}
