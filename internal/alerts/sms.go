package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/pranav24547/Ai-Surveillance-System/internal/config"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

// SMS sends one Twilio text message per recipient.
type SMS struct {
	counters
	cfg    config.SMSConfig
	client *twilio.RestClient
}

func NewSMS(cfg config.SMSConfig) *SMS {
	return &SMS{cfg: cfg}
}

func (s *SMS) Kind() string { return KindSMS }

func (s *SMS) Init() error {
	if !s.cfg.Enabled || s.cfg.TwilioAccountSID == "" || s.cfg.TwilioAuthToken == "" ||
		s.cfg.FromNumber == "" || len(s.cfg.ToNumbers) == 0 {
		s.setReady(false)
		return ErrNotConfigured
	}

	s.client = twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: s.cfg.TwilioAccountSID,
		Password: s.cfg.TwilioAuthToken,
	})
	s.setReady(true)
	return nil
}

func (s *SMS) Send(ctx context.Context, alert models.Alert) error {
	body := plainMessage(alert)

	var errs []error
	for _, to := range s.cfg.ToNumbers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.cfg.FromNumber)
		params.SetBody(body)

		if _, err := s.client.Api.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
		}
	}
	return s.record(errors.Join(errs...))
}

func (s *SMS) Status() ChannelStatus {
	return s.status(len(s.cfg.ToNumbers), map[string]string{"from_number": s.cfg.FromNumber})
}
