package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const (
	// Transient failures: attempt ceiling and starting backoff.
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond

	// Rate limiting: its own retry counter and a wait floor that a smaller
	// server hint never undercuts.
	maxRateLimitRetries  = 10
	defaultRateLimitWait = 60 * time.Second
)

// Querier runs one GraphQL query. *githubv4.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, q interface{}, variables map[string]interface{}) error
}

// lastResponder exposes the most recent HTTP response for error
// classification.
type lastResponder interface {
	Last() *ResponseInfo
}

// Executor issues one remote query at a time with a bounded retry policy for
// transient failures and rate limiting. NotFound is surfaced untouched so
// collectors can skip a vanished parent instead of failing the run.
type Executor struct {
	querier Querier
	lastRsp lastResponder
	logger  *slog.Logger

	// replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor over the GitHub GraphQL endpoint using a
// static token.
func NewExecutor(token string, logger *slog.Logger) *Executor {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)

	rec := &recordingTransport{base: httpClient.Transport}
	httpClient.Transport = rec

	return newExecutor(githubv4.NewClient(httpClient), rec, logger)
}

func newExecutor(querier Querier, lastRsp lastResponder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		querier: querier,
		lastRsp: lastRsp,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Execute runs a query with retries. The returned error is either a
// *NotFoundError or fatal; rate-limited and transient failures have already
// been retried to their respective ceilings.
func (e *Executor) Execute(ctx context.Context, q interface{}, variables map[string]interface{}) error {
	attempts := 0
	rateLimitWaits := 0
	backoff := initialBackoff

	for {
		err := e.querier.Query(ctx, q, variables)
		if err == nil {
			return nil
		}

		var last *ResponseInfo
		if e.lastRsp != nil {
			last = e.lastRsp.Last()
		}

		switch classify(err, last) {
		case failureNotFound:
			return &NotFoundError{Err: err}

		case failureRateLimited:
			rateLimitWaits++
			if rateLimitWaits > maxRateLimitRetries {
				return fmt.Errorf("giving up after %d rate limit waits: %w", maxRateLimitRetries, err)
			}

			wait := defaultRateLimitWait
			var header http.Header
			if last != nil {
				header = last.Header
			}
			if hint, ok := rateLimitHint(header, graphErrors(err), time.Now()); ok && hint > wait {
				wait = hint
			}

			e.logger.Warn("rate limited, waiting before retry",
				"wait", wait, "attempt", rateLimitWaits, "max_attempts", maxRateLimitRetries)
			if serr := e.sleep(ctx, wait); serr != nil {
				return serr
			}

		default:
			attempts++
			if attempts >= maxAttempts {
				return fmt.Errorf("request failed after %d attempts: %w", maxAttempts, err)
			}

			e.logger.Debug("transient request failure, backing off",
				"error", err, "backoff", backoff, "attempt", attempts)
			if serr := e.sleep(ctx, backoff); serr != nil {
				return serr
			}
			backoff *= 2
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
