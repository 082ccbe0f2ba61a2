// Package analytics はアナリティクスイベントの転送を提供する。
// イベントはRabbitMQのトピックエクスチェンジに非同期・ベストエフォートで送られる。
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sink はイベントの送信先。
type Sink interface {
	PublishJSON(ctx context.Context, key string, v any) error
	Close() error
}

// Publisher はAMQPのトピックエクスチェンジにJSONを送信するSink。
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher はRabbitMQに接続し、エクスチェンジを宣言する。
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON はvをJSONエンコードしてルーティングキーkeyで送信する。
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
}

// Close はチャネルと接続を閉じる。
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogSink はブローカー未設定時に使うSink。イベントをログに出力するだけ。
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink はLogSinkを生成する。
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// PublishJSON はイベントをdebugレベルでログに出力する。
func (s *LogSink) PublishJSON(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.logger.Debug("analytics event", slog.String("key", key), slog.String("payload", string(b)))
	return nil
}

// Close は何もしない。
func (s *LogSink) Close() error { return nil }
