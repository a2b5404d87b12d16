package server

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(nil, testLogger())

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	event := formatSSE("michibiki_recommendations", `{"id":"r-1"}`)
	b.broadcast(event)

	for i, ch := range []chan []byte{ch1, ch2} {
		select {
		case got := <-ch:
			if string(got) != string(event) {
				t.Errorf("subscriber %d got %q, want %q", i+1, got, event)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d did not receive the event", i+1)
		}
	}

	b.Unsubscribe(ch1)
	b.broadcast(event)

	select {
	case got := <-ch2:
		if string(got) != string(event) {
			t.Errorf("remaining subscriber got %q", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("remaining subscriber did not receive the event")
	}

	// The unsubscribed channel is closed.
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel still open")
	}

	b.Unsubscribe(ch2)
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker(nil, testLogger())

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	event := formatSSE("michibiki_decisions", `{"id":"r-2"}`)
	// One more than the subscriber buffer; the overflow must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range cap(ch) + 1 {
			b.broadcast(event)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}

	if len(ch) != cap(ch) {
		t.Errorf("buffered events = %d, want %d", len(ch), cap(ch))
	}
}

func TestFormatSSE(t *testing.T) {
	got := string(formatSSE("progress", `{"state":"analyzing"}`))
	want := "event: progress\ndata: {\"state\":\"analyzing\"}\n\n"
	if got != want {
		t.Errorf("formatSSE = %q, want %q", got, want)
	}
}
