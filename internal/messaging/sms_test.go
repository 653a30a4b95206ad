package messaging

import (
	"context"
	"errors"
	"testing"

	"kixikila/internal/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type stubCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (s *stubCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	sid := "SM1"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSenderSends(t *testing.T) {
	api := &stubCreator{}
	s := &TwilioSender{api: api, from: "+15550000000", breaker: resilience.NewBreaker(resilience.Settings{Name: "twilio-test"})}
	require.NoError(t, s.SendSMS(context.Background(), "+244923000000", "hello"))
	require.Len(t, api.params, 1)
	assert.Equal(t, "+244923000000", *api.params[0].To)
	assert.Equal(t, "+15550000000", *api.params[0].From)
	assert.Equal(t, "hello", *api.params[0].Body)
}

func TestTwilioSenderWrapsErrors(t *testing.T) {
	api := &stubCreator{err: errors.New("boom")}
	s := &TwilioSender{api: api, from: "+15550000000", breaker: resilience.NewBreaker(resilience.Settings{Name: "twilio-test-err"})}
	err := s.SendSMS(context.Background(), "+244923000000", "hello")
	assert.ErrorContains(t, err, "send sms")
}

func TestTwilioSenderDisabledLogsOnly(t *testing.T) {
	api := &stubCreator{}
	s := &TwilioSender{api: api}
	require.NoError(t, s.SendSMS(context.Background(), "+244923000000", "hello"))
	assert.Empty(t, api.params)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+244*******00", MaskPhone("+244923000000"))
	assert.Equal(t, "***", MaskPhone("+1234"))
}
