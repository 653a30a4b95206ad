package messaging

import (
	"context"
	"fmt"

	"kixikila/internal/config"
	"kixikila/internal/logging"
	"kixikila/internal/resilience"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type Sender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioSender struct {
	api     messageCreator
	from    string
	breaker *resilience.Breaker
}

// NewTwilioSender falls back to logging messages when no sender number is
// configured, which is how development environments run.
func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{
		api:     client.Api,
		from:    cfg.FromNumber,
		breaker: resilience.NewBreaker(resilience.Settings{Name: "twilio"}),
	}
}

func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if s.from == "" || s.api == nil {
		logging.Ctx(ctx).Info().Str("to", MaskPhone(to)).Str("body", body).Msg("sms (not sent, twilio disabled)")
		return nil
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)
	msg, err := resilience.Call(s.breaker, func() (*twilioApi.ApiV2010Message, error) {
		return s.api.CreateMessage(params)
	})
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if msg != nil && msg.Sid != nil {
		logging.Ctx(ctx).Debug().Str("sid", *msg.Sid).Str("to", MaskPhone(to)).Msg("sms sent")
	}
	return nil
}

// MaskPhone keeps the country prefix and the last two digits.
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	masked := []byte(phone)
	for i := 4; i < len(masked)-2; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
