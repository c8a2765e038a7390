package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendTransport sends through the Resend HTTP API.
type ResendTransport struct {
	client *resend.Client
	from   string
}

// NewResendTransport returns a transport authenticated with apiKey.
func NewResendTransport(apiKey, from string) (*ResendTransport, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return nil, errors.New("resend: api key and sender are required")
	}
	return &ResendTransport{client: resend.NewClient(apiKey), from: from}, nil
}

func (t *ResendTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.client.Emails.Send(&resend.SendEmailRequest{
		From:    t.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}
