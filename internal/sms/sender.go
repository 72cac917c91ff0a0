package sms

import (
	"context"
	"log"
)

// Sender はSMSゲートウェイへの送信を抽象化します。
type Sender interface {
	Send(ctx context.Context, mobile, code string) error
}

// LogSender は実際には送信せずログに出力する開発用の Sender です。
type LogSender struct {
	Logger *log.Logger
}

// Send はコードをログへ出力します。
func (s *LogSender) Send(ctx context.Context, mobile, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("sms: [dev] send code=%s to mobile=%s", code, mobile)
	return nil
}
