package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender 通过SendGrid发送邮件
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	sandbox   bool
}

func NewSendGridSender(apiKey, fromEmail, fromName string, sandbox bool) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		sandbox:   sandbox,
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, email Email) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(email.ToName, email.ToAddress)
	html := email.HTML
	if html == "" {
		html = email.PlainText
	}
	msg := mail.NewSingleEmail(from, email.Subject, to, email.PlainText, html)

	disabled := false
	msg.TrackingSettings = &mail.TrackingSettings{
		ClickTracking: &mail.ClickTrackingSetting{Enable: &disabled},
	}
	if s.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
