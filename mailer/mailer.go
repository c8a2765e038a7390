package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers rendered messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoTransport is returned when a Mailer has no transport configured.
var ErrNoTransport = errors.New("mailer: no transport configured")

var (
	codeTemplate  = template.Must(template.New("code").Parse(`<p>{{.Intro}} <b>{{.Code}}</b></p>`))
	resetTemplate = template.Must(template.New("reset").Parse(`<p>Click the link to reset your password: <a href="{{.URL}}">{{.URL}}</a></p>`))
)

// Mailer renders and sends the engine's emails.
type Mailer struct {
	transport Transport
	baseURL   string
}

// New returns a Mailer that sends through t. baseURL prefixes reset links.
func New(t Transport, baseURL string) *Mailer {
	return &Mailer{
		transport: t,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// SendVerificationCode emails the sign-up verification code.
func (m *Mailer) SendVerificationCode(ctx context.Context, to, code string) error {
	return m.sendCode(ctx, to, "Verify your email address", "Your verification code:", code)
}

// SendTwoFactorCode emails a two-factor code.
func (m *Mailer) SendTwoFactorCode(ctx context.Context, to, code string) error {
	return m.sendCode(ctx, to, "Two-factor authentication", "Your verification code:", code)
}

// SendDeleteAccountCode emails the account deletion code.
func (m *Mailer) SendDeleteAccountCode(ctx context.Context, to, code string) error {
	return m.sendCode(ctx, to, "Delete your account", "Your verification code to delete your account:", code)
}

// SendPasswordReset emails a link to {baseURL}/password-reset/{token}.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	var body bytes.Buffer
	if err := resetTemplate.Execute(&body, struct{ URL string }{URL: m.ResetURL(token)}); err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}
	return m.send(ctx, Message{To: to, Subject: "Reset your password", HTML: body.String()})
}

// ResetURL returns the password reset link for token.
func (m *Mailer) ResetURL(token string) string {
	return m.baseURL + "/password-reset/" + token
}

func (m *Mailer) sendCode(ctx context.Context, to, subject, intro, code string) error {
	var body bytes.Buffer
	if err := codeTemplate.Execute(&body, struct{ Intro, Code string }{intro, code}); err != nil {
		return fmt.Errorf("render %q email: %w", subject, err)
	}
	return m.send(ctx, Message{To: to, Subject: subject, HTML: body.String()})
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	if m == nil || m.transport == nil {
		return ErrNoTransport
	}
	if err := m.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %q email: %w", msg.Subject, err)
	}
	return nil
}
