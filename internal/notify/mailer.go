package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"storyboardgen/internal/domain"
)

// Message is a transactional email.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type sendClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid sends mail through the SendGrid v3 API.
type SendGrid struct {
	from   *mail.Email
	client sendClient
	logger zerolog.Logger
}

func NewSendGrid(apiKey, fromAddress string, logger zerolog.Logger) *SendGrid {
	return &SendGrid{
		from:   mail.NewEmail("StoryboardGen", fromAddress),
		client: sendgrid.NewSendClient(apiKey),
		logger: logger,
	}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return domain.NewValidationError("to_email", "recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	resp, err := s.client.Send(mail.NewSingleEmail(s.from, msg.Subject, to, msg.Text, msg.HTML))
	if err != nil {
		s.logger.Error().Err(err).Str("to", msg.ToEmail).Msg("sendgrid send failed")
		return fmt.Errorf("notify: send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error().Int("status", resp.StatusCode).Str("body", resp.Body).Msg("sendgrid rejected message")
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Info().Str("to", msg.ToEmail).Int("status", resp.StatusCode).Msg("email sent")
	return nil
}

// LogMailer records messages instead of sending them. Used when no SendGrid key is configured.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (l *LogMailer) Send(_ context.Context, msg Message) error {
	l.logger.Info().Str("to", msg.ToEmail).Str("subject", msg.Subject).Msg("email delivery disabled")
	return nil
}

// PlanActivated builds the message sent when a paid plan starts.
func PlanActivated(email string, plan domain.PlanType) Message {
	name := strings.ToUpper(string(plan[:1])) + string(plan[1:])
	text := fmt.Sprintf("Your %s plan is active. You have %d scene credits this month.", name, plan.CreditLimit())
	return Message{
		ToEmail: email,
		Subject: fmt.Sprintf("Your StoryboardGen %s plan is active", name),
		Text:    text,
		HTML:    "<p>" + text + "</p>",
	}
}
