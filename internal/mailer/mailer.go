// Package mailer はSMTP経由のプレーンテキストメール送信を提供する。
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Sender はメール送信のインターフェース。
type Sender interface {
	SendText(ctx context.Context, to []string, subject, body string) error
}

// Config はSMTP接続設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Validate は必須項目を検証する。
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("missing SMTP host")
	}
	if c.Port == 0 {
		return errors.New("missing SMTP port")
	}
	if c.From == "" {
		return errors.New("missing SMTP from address")
	}
	return nil
}

// Mailer はgomailを使ったSender。
type Mailer struct {
	from   string
	send   func(msg *gomail.Message) error
	logger *slog.Logger
}

// New はMailerを生成する。
func New(cfg Config, logger *slog.Logger) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{
		from:   cfg.From,
		send:   func(msg *gomail.Message) error { return dialer.DialAndSend(msg) },
		logger: logger,
	}, nil
}

// SendText はプレーンテキストのメールを送信する。
func (m *Mailer) SendText(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	m.logger.Info("mail sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(to)),
	)
	return nil
}

// LogSender はSMTP未設定時に使うSender。送信内容をログに出力する。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendText はメールを送らずにログに出力する。
func (s *LogSender) SendText(_ context.Context, to []string, subject, _ string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	s.logger.Info("mail delivery disabled, message not sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(to)),
	)
	return nil
}
