package mail

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tazhibayda/learnpath-auth/internal/metrics"
)

// Dispatcher delivers the transactional emails the auth flows need.
type Dispatcher interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
	SendPasswordReset(ctx context.Context, to, name, link string, expiresIn time.Duration) error
}

// Message is a rendered email, ready for any Sender. It is also the queued wire format.
type Message struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Mailer renders templates and hands the result to a Sender.
type Mailer struct {
	sender Sender
}

func NewMailer(s Sender) *Mailer { return &Mailer{sender: s} }

func (m *Mailer) SendVerificationCode(ctx context.Context, to, name, code string) error {
	return m.send(ctx, tplVerification, to, "Verify your email", struct{ Name, Code string }{name, code})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, link string, expiresIn time.Duration) error {
	return m.send(ctx, tplReset, to, "Reset your password", struct{ Name, Link, ExpiresIn string }{name, link, humanDuration(expiresIn)})
}

// humanDuration renders d for mail copy, e.g. "24 hours" or "90 minutes".
func humanDuration(d time.Duration) string {
	unit := func(n int64, word string) string {
		if n == 1 {
			return "1 " + word
		}
		return fmt.Sprintf("%d %ss", n, word)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return unit(int64(d/time.Minute), "minute")
	default:
		return unit(int64(d/time.Second), "second")
	}
}

func (m *Mailer) send(ctx context.Context, tpl, to, subject string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tpl, data); err != nil {
		metrics.MailSent.WithLabelValues(tpl, "render_error").Inc()
		return fmt.Errorf("render %s: %w", tpl, err)
	}
	err := m.sender.Send(ctx, Message{Template: tpl, To: to, Subject: subject, HTML: buf.String()})
	if err != nil {
		metrics.MailSent.WithLabelValues(tpl, "error").Inc()
		return fmt.Errorf("send %s: %w", tpl, err)
	}
	metrics.MailSent.WithLabelValues(tpl, "ok").Inc()
	return nil
}
