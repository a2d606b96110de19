// Package notify 外部通知渠道（邮件、短信）。
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Email 一封待发送的邮件
type Email struct {
	ToName    string
	ToAddress string
	Subject   string
	PlainText string
	HTML      string
}

// EmailSender 邮件渠道
type EmailSender interface {
	SendEmail(ctx context.Context, email Email) error
}

// SMSSender 短信渠道
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSender 未配置服务商时使用，只记录日志
type LogSender struct {
	Log *logrus.Logger
}

func (s *LogSender) SendEmail(_ context.Context, email Email) error {
	s.Log.WithFields(logrus.Fields{
		"to":      email.ToAddress,
		"subject": email.Subject,
	}).Info("email channel not configured, skipped")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.Log.WithField("to", to).Info("sms channel not configured, skipped")
	return nil
}
