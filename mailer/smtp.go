package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/domodwyer/mailyak/v3"
)

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPTransport sends through an SMTP relay with mailyak.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport returns a transport for cfg.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Send delivers msg. mailyak has no context support, so the send runs in a
// goroutine and ctx only bounds how long the caller waits.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}
	mail := mailyak.New(fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port), auth)

	mail.To(msg.To)
	mail.From(t.cfg.From)
	if t.cfg.FromName != "" {
		mail.FromName(t.cfg.FromName)
	}
	mail.Subject(msg.Subject)
	mail.HTML().Set(msg.HTML)

	done := make(chan error, 1)
	go func() {
		done <- mail.Send()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
		return nil
	}
}
