package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/jordan-wright/email"
)

// EmailSender handles sending alerts via SMTP
type EmailSender struct {
	from     string
	to       []string
	addr     string
	auth     smtp.Auth
	channels map[Channel]bool
	send     func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewEmailSender creates a sender for the given channels, or nil when SMTP or
// recipients are not configured.
func NewEmailSender(cfg *config.Config, channels ...Channel) *EmailSender {
	to := cfg.AlertRecipients()
	if cfg.SMTPHost == "" || len(to) == 0 {
		return nil
	}
	return &EmailSender{
		from:     cfg.SenderEmail,
		to:       to,
		addr:     fmt.Sprintf("%s:%s", cfg.SMTPHost, cfg.SMTPPort),
		auth:     smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost),
		channels: routes(channels),
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (s *EmailSender) Name() string { return "email" }

func (s *EmailSender) Send(ctx context.Context, channel Channel, text string) error {
	if !s.channels[channel] {
		return ErrNoRoute
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = s.from
	e.To = s.to
	e.Subject = subject(channel)
	e.Text = []byte(text + "\n\n-- bank-batch\n")

	if err := s.send(e, s.addr, s.auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func subject(channel Channel) string {
	switch channel {
	case ChannelRisk:
		return "[bank-batch] Risk escalation"
	case ChannelLargeWithdrawal:
		return "[bank-batch] Large withdrawal"
	case ChannelWallet:
		return "[bank-batch] Main wallet alert"
	default:
		return "[bank-batch] Notification"
	}
}
