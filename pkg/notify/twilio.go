package notify

import (
	"context"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender 通过Twilio发送短信
type TwilioSender struct {
	client    *twilio.RestClient
	fromPhone string
}

func NewTwilioSender(accountSID, authToken, fromPhone string) *TwilioSender {
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		fromPhone: fromPhone,
	}
}

// SendSMS twilio客户端不支持context，这里只在发送前检查是否已取消
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.fromPhone)
	params.SetBody(body)
	_, err := s.client.Api.CreateMessage(params)
	return err
}
