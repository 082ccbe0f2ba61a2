package analytics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type published struct {
	key   string
	event Event
}

type mockSink struct {
	mu        sync.Mutex
	published []published
	closed    bool
	block     chan struct{}
	publishFn func(key string) error
}

func (m *mockSink) PublishJSON(_ context.Context, key string, v any) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{key: key, event: v.(Event)})
	if m.publishFn != nil {
		return m.publishFn(key)
	}
	return nil
}

func (m *mockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestEvent_RoutingKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Order Completed", "analytics.order_completed"},
		{"  signed_up ", "analytics.signed_up"},
		{"Payment   Method Added", "analytics.payment_method_added"},
	}
	for _, tt := range tests {
		if got := (Event{Name: tt.name}).RoutingKey(); got != tt.want {
			t.Errorf("RoutingKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTracker_TrackAndFlush_DeliversAll(t *testing.T) {
	var buf bytes.Buffer
	sink := &mockSink{}
	tr := NewTracker(sink, newTestLogger(&buf), 16)

	for _, name := range []string{"Signed Up", "Order Completed", "Page Viewed"} {
		if err := tr.Track(Event{Name: name, UserID: "u1"}); err != nil {
			t.Fatalf("Track returned error: %v", err)
		}
	}

	if err := tr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	if len(sink.published) != 3 {
		t.Fatalf("published %d events, want 3", len(sink.published))
	}
	first := sink.published[0]
	if first.key != "analytics.signed_up" {
		t.Errorf("key = %q", first.key)
	}
	if first.event.ID == "" || first.event.Timestamp.IsZero() {
		t.Errorf("event id/timestamp not filled: %+v", first.event)
	}
	if !sink.closed {
		t.Error("sink was not closed by Flush")
	}
}

func TestTracker_TrackAfterFlush_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&mockSink{}, newTestLogger(&buf), 1)

	if err := tr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if err := tr.Track(Event{Name: "late"}); !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("err = %v, want ErrTrackerClosed", err)
	}
	// 2回目のFlushも安全
	if err := tr.Flush(context.Background()); err != nil {
		t.Errorf("second Flush returned error: %v", err)
	}
}

func TestTracker_PublishFailure_IsLoggedNotFatal(t *testing.T) {
	var buf bytes.Buffer
	sink := &mockSink{publishFn: func(string) error { return errors.New("broker down") }}
	tr := NewTracker(sink, newTestLogger(&buf), 4)

	tr.Track(Event{Name: "a"})
	tr.Track(Event{Name: "b"})
	if err := tr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	if len(sink.published) != 2 {
		t.Errorf("publish attempts = %d, want 2", len(sink.published))
	}
	if !bytes.Contains(buf.Bytes(), []byte("broker down")) {
		t.Errorf("log does not contain publish error: %s", buf.String())
	}
}

func TestTracker_Flush_RespectsContext(t *testing.T) {
	var buf bytes.Buffer
	sink := &mockSink{block: make(chan struct{})}
	tr := NewTracker(sink, newTestLogger(&buf), 4)
	tr.Track(Event{Name: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tr.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	close(sink.block)
}

func TestLogSink_PublishJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(newTestLogger(&buf))

	if err := s.PublishJSON(context.Background(), "analytics.x", Event{Name: "x"}); err != nil {
		t.Fatalf("PublishJSON returned error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("analytics.x")) {
		t.Errorf("log output = %s", buf.String())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
