package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/michibiki-ai/michibiki/internal/llm"
)

// StageConfig bounds every model call a stage makes.
type StageConfig struct {
	CallTimeout    time.Duration
	RetryAttempts  int // Additional attempts after the first call.
	RetryBaseDelay time.Duration
}

// validatable is implemented by stage output structs to enforce their
// contract beyond JSON well-formedness.
type validatable interface {
	validate() error
}

// invokeStructured executes one structured-output call with the stage's
// retry budget. Transport failures and malformed responses are both
// retried; context cancellation aborts immediately. On exhaustion the last
// error is returned wrapped in the stage taxonomy.
func invokeStructured(ctx context.Context, provider llm.Provider, stage string, req llm.Request, out validatable, cfg StageConfig, logger *slog.Logger) error {
	delay := cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	attempts := cfg.RetryAttempts + 1
	for attempt := range attempts {
		if attempt > 0 {
			jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
			}
			delay *= 2
			logger.Debug("retrying model call", "stage", stage, "attempt", attempt+1)
		}

		lastErr = invokeAndValidate(ctx, provider, stage, req, out, cfg.CallTimeout, attempt+1)
		if lastErr == nil {
			return nil
		}
		if !retriable(lastErr) {
			return lastErr
		}
	}

	// Normalize the attempt count on the final invocation error so callers
	// see the full budget, not the attempt the last failure happened on.
	if mErr, ok := lastErr.(*ModelInvocationError); ok {
		mErr.Attempts = attempts
	}
	return lastErr
}

// invokeAndValidate performs one call and applies the stage's output
// contract. Cancellation surfaces as the bare context error, which
// retriable() rejects, so a cancelled run never burns the remaining budget.
func invokeAndValidate(ctx context.Context, provider llm.Provider, stage string, req llm.Request, out validatable, timeout time.Duration, calls int) error {
	raw, err := invokeOnce(ctx, provider, req, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ModelInvocationError{Stage: stage, Attempts: calls, Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &SchemaValidationError{Stage: stage, Err: fmt.Errorf("unmarshal: %w", err)}
	}
	if err := out.validate(); err != nil {
		return &SchemaValidationError{Stage: stage, Err: err}
	}
	return nil
}

func invokeOnce(ctx context.Context, provider llm.Provider, req llm.Request, timeout time.Duration) (json.RawMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return provider.Invoke(ctx, req)
}
