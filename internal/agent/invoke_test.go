package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/michibiki-ai/michibiki/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// scriptedProvider returns queued responses in call order. An entry with a
// non-nil err fails that call.
type scriptedProvider struct {
	script []scriptedCall
	calls  int
}

type scriptedCall struct {
	response string
	err      error
}

func (p *scriptedProvider) Invoke(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.calls >= len(p.script) {
		return nil, fmt.Errorf("unexpected call %d", p.calls+1)
	}
	call := p.script[p.calls]
	p.calls++
	if call.err != nil {
		return nil, call.err
	}
	return json.RawMessage(call.response), nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type probeOutput struct {
	Label string `json:"label"`
}

func (o *probeOutput) validate() error {
	if o.Label == "" {
		return fmt.Errorf("label is empty")
	}
	return nil
}

func fastStage() StageConfig {
	return StageConfig{
		CallTimeout:    time.Second,
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
	}
}

func TestInvokeStructuredFirstTry(t *testing.T) {
	p := &scriptedProvider{script: []scriptedCall{{response: `{"label": "ok"}`}}}

	var out probeOutput
	err := invokeStructured(context.Background(), p, "probe", llm.Request{}, &out, fastStage(), testLogger())
	if err != nil {
		t.Fatalf("invokeStructured: %v", err)
	}
	if out.Label != "ok" {
		t.Errorf("label = %q, want ok", out.Label)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestInvokeStructuredRecoversAfterTransportFailure(t *testing.T) {
	p := &scriptedProvider{script: []scriptedCall{
		{err: errors.New("connection reset")},
		{response: `{"label": "ok"}`},
	}}

	var out probeOutput
	err := invokeStructured(context.Background(), p, "probe", llm.Request{}, &out, fastStage(), testLogger())
	if err != nil {
		t.Fatalf("invokeStructured: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}
}

func TestInvokeStructuredExhaustsRetryBudget(t *testing.T) {
	boom := errors.New("upstream unavailable")
	p := &scriptedProvider{script: []scriptedCall{{err: boom}, {err: boom}, {err: boom}}}

	var out probeOutput
	err := invokeStructured(context.Background(), p, "probe", llm.Request{}, &out, fastStage(), testLogger())
	if err == nil {
		t.Fatal("invokeStructured succeeded past the retry budget")
	}

	var mErr *ModelInvocationError
	if !errors.As(err, &mErr) {
		t.Fatalf("error type = %T, want *ModelInvocationError", err)
	}
	if mErr.Stage != "probe" {
		t.Errorf("stage = %q, want probe", mErr.Stage)
	}
	if mErr.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", mErr.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("cause not wrapped")
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestInvokeStructuredRetriesMalformedResponse(t *testing.T) {
	p := &scriptedProvider{script: []scriptedCall{
		{response: `not json`},
		{response: `{"label": ""}`},
		{response: `{"label": "ok"}`},
	}}

	var out probeOutput
	err := invokeStructured(context.Background(), p, "probe", llm.Request{}, &out, fastStage(), testLogger())
	if err != nil {
		t.Fatalf("invokeStructured: %v", err)
	}
	if out.Label != "ok" {
		t.Errorf("label = %q, want ok", out.Label)
	}
}

func TestInvokeStructuredSchemaErrorOnExhaustion(t *testing.T) {
	p := &scriptedProvider{script: []scriptedCall{
		{response: `{"label": ""}`},
		{response: `{"label": ""}`},
		{response: `{"label": ""}`},
	}}

	var out probeOutput
	err := invokeStructured(context.Background(), p, "probe", llm.Request{}, &out, fastStage(), testLogger())

	var sErr *SchemaValidationError
	if !errors.As(err, &sErr) {
		t.Fatalf("error type = %T, want *SchemaValidationError", err)
	}
	if sErr.Stage != "probe" {
		t.Errorf("stage = %q, want probe", sErr.Stage)
	}
}

func TestInvokeStructuredCancelledContext(t *testing.T) {
	p := &scriptedProvider{script: []scriptedCall{{response: `{"label": "ok"}`}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out probeOutput
	err := invokeStructured(ctx, p, "probe", llm.Request{}, &out, fastStage(), testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// cancellingProvider cancels the run during its first call, the way a client
// disconnect does.
type cancellingProvider struct {
	cancel context.CancelFunc
	calls  int
}

func (p *cancellingProvider) Invoke(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	p.calls++
	p.cancel()
	return nil, context.Canceled
}

func (p *cancellingProvider) Name() string { return "cancelling" }

func TestInvokeStructuredCancellationNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &cancellingProvider{cancel: cancel}

	var out probeOutput
	err := invokeStructured(ctx, p, "probe", llm.Request{}, &out, fastStage(), testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1 (cancellation must not consume the retry budget)", p.calls)
	}
}

func TestRetriable(t *testing.T) {
	if !retriable(&ModelInvocationError{Stage: "probe", Err: errors.New("x")}) {
		t.Error("invocation error should be retriable")
	}
	if !retriable(&SchemaValidationError{Stage: "probe", Err: errors.New("x")}) {
		t.Error("schema error should be retriable")
	}
	if retriable(context.Canceled) {
		t.Error("cancellation should not be retriable")
	}
}
