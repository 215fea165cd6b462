package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1000 * time.Millisecond
)

// ErrQuotaExhausted marks a failure caused by provider quota or rate limiting.
var ErrQuotaExhausted = errors.New("quota exhausted")

// ExhaustedError is returned by CallGuard.Do once every attempt has failed.
type ExhaustedError struct {
	Call     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Call, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// CallGuard retries a single external call with exponential backoff.
type CallGuard struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger
}

// NewCallGuard returns a guard with the given limits; non-positive values select the defaults.
func NewCallGuard(maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *CallGuard {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay < 0 {
		baseDelay = defaultBaseDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CallGuard{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Logger: logger}
}

// Do runs op until it succeeds or MaxAttempts is reached, sleeping BaseDelay*2^attempt between
// attempts. The backoff wait stops early when ctx is cancelled; op itself receives a context
// that is not cancelled with ctx so an in-flight call can finish.
func (g *CallGuard) Do(ctx context.Context, call string, op func(ctx context.Context) error) error {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	callCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := g.BaseDelay * time.Duration(1<<(attempt-1))
			logger.Warn("Retrying external call",
				"call", call,
				"attempt", attempt+1,
				"max_attempts", attempts,
				"delay", delay,
				"quota", IsQuotaError(lastErr),
				"last_error", lastErr)
			metrics.CallRetries.WithLabelValues(call).Inc()
			if err := waitWithContext(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = op(callCtx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	kind := "generic"
	if IsQuotaError(lastErr) {
		kind = "quota"
	}
	metrics.CallExhausted.WithLabelValues(call, kind).Inc()
	logger.Error("External call failed after all attempts",
		"call", call,
		"attempts", attempts,
		"kind", kind,
		"error", lastErr)
	return &ExhaustedError{Call: call, Attempts: attempts, Err: lastErr}
}

// IsQuotaError reports whether err is a provider rate-limit or quota failure.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return isQuotaStatus(apiErr.Code, apiErr.Status)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return isQuotaStatus(apiErrPtr.Code, apiErrPtr.Status)
	}
	return false
}

func isQuotaStatus(code int, status string) bool {
	return code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED"
}

// Fallback picks the placeholder for a failed call: quota for rate-limit failures, generic for
// everything else.
func Fallback[T any](err error, quota, generic T) T {
	if IsQuotaError(err) {
		return quota
	}
	return generic
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
