package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSGateway hands one text message to a carrier-facing provider and returns
// the provider's message reference.
type SMSGateway interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

var ErrSMSRejected = errors.New("sms: provider rejected message")

// TwilioGateway sends through the Twilio Messages API.
type TwilioGateway struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioGateway(accountSID, authToken, from string) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioGateway{client: client, from: from}
}

func (g *TwilioGateway) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(g.from)
	params.SetBody(body)

	resp, err := g.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio: %w", err)
	}
	if resp.ErrorCode != nil {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return "", fmt.Errorf("%w: code %d %s", ErrSMSRejected, *resp.ErrorCode, msg)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

// LogGateway only logs. It is wired when no Twilio credentials are configured
// so local development never texts real phones.
type LogGateway struct{}

func (LogGateway) SendSMS(_ context.Context, to, body string) (string, error) {
	log.Info().Str("to", to).Str("body", body).Msg("sms: (log gateway) message not sent")
	return "log", nil
}

// NewSMSGateway picks Twilio when credentials are present.
func NewSMSGateway(accountSID, authToken, from string) SMSGateway {
	if accountSID == "" || authToken == "" || from == "" {
		log.Warn().Msg("sms: Twilio not configured, using log gateway")
		return LogGateway{}
	}
	return NewTwilioGateway(accountSID, authToken, from)
}
