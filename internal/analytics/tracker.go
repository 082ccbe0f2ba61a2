package analytics

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTrackerClosed はFlush後にTrackが呼ばれた場合のエラー。
var ErrTrackerClosed = errors.New("analytics tracker is closed")

// Event はアナリティクスイベント。
type Event struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	UserID      string         `json:"userId,omitempty"`
	AnonymousID string         `json:"anonymousId,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// RoutingKey はイベント名から導出したルーティングキー。
// 例: "Order Completed" は "analytics.order_completed"。
func (e Event) RoutingKey() string {
	name := strings.ToLower(strings.TrimSpace(e.Name))
	name = strings.Join(strings.Fields(name), "_")
	return "analytics." + name
}

// Tracker はイベントをバッファし、バックグラウンドでSinkへ送信する。
// Trackは呼び出し元をブロックしない。バッファが満杯の場合イベントは破棄される。
type Tracker struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}
}

// NewTracker はTrackerを生成し、送信ゴルーチンを開始する。
func NewTracker(sink Sink, logger *slog.Logger, buffer int) *Tracker {
	if buffer <= 0 {
		buffer = 256
	}
	t := &Tracker{
		sink:    sink,
		logger:  logger,
		timeout: 5 * time.Second,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Track はイベントをキューに積む。IDとTimestampが未設定なら補完する。
func (t *Tracker) Track(e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTrackerClosed
	}

	select {
	case t.events <- e:
	default:
		t.logger.Warn("analytics buffer full, dropping event",
			slog.String("event", e.Name),
			slog.String("event_id", e.ID),
		)
	}
	return nil
}

// Flush は新しいイベントの受付を停止し、キュー内のイベントを送信し終えるまで待つ。
// ctxが先に終了した場合はctxのエラーを返す。
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return t.sink.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) run() {
	defer close(t.done)
	for e := range t.events {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.sink.PublishJSON(ctx, e.RoutingKey(), e); err != nil {
			t.logger.Warn("failed to publish analytics event",
				slog.String("event", e.Name),
				slog.String("event_id", e.ID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
