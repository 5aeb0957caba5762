package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink failure") }

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "login_failure"})
	d.Close()

	first := <-sink.Events()
	second := <-sink.Events()
	if first.EventType != "login_success" || second.EventType != "login_failure" {
		t.Fatalf("unexpected order: %s, %s", first.EventType, second.EventType)
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, panicSink{})
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Emit(context.Background(), Event{EventType: "y"})
	d.Close()

	if d.Failed() != 2 {
		t.Fatalf("Failed = %d, want 2", d.Failed())
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, Event) { <-block })
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "burst"})
	}
	close(block)
	d.Close()
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	NewJSONWriterSink(&buf).Emit(context.Background(), Event{
		Timestamp:      time.Unix(0, 0).UTC(),
		EventType:      "lockout_triggered",
		OrganizationID: "org-1",
		Details:        map[string]string{"subject_hash": "abc"},
	})

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if decoded["event_type"] != "lockout_triggered" || decoded["organization_id"] != "org-1" {
		t.Fatalf("unexpected event %v", decoded)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatal("events must be newline-delimited")
	}
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewZapSink(zap.New(core)).Emit(context.Background(), Event{
		EventType: "login_success",
		UserID:    "u1",
		Success:   true,
		Details:   map[string]string{"subject_hash": "abc"},
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != "login_success" || fields["user_id"] != "u1" || fields["subject_hash"] != "abc" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
