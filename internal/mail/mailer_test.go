package mail

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	got []Message
	err error
}

func (c *captureSender) Send(_ context.Context, m Message) error {
	c.got = append(c.got, m)
	return c.err
}

type capturePub struct {
	exchange, key, reqID string
	body                 []byte
}

func (p *capturePub) Publish(_ context.Context, exchange, key string, event any, reqID string) error {
	b, err := json.Marshal(event)
	p.exchange, p.key, p.reqID, p.body = exchange, key, reqID, b
	return err
}
func (p *capturePub) Close() error { return nil }

func TestMailer_VerificationCode(t *testing.T) {
	s := &captureSender{}
	m := NewMailer(s)

	require.NoError(t, m.SendVerificationCode(context.Background(), "ada@example.com", "Ada", "123456"))
	require.Len(t, s.got, 1)
	assert.Equal(t, "ada@example.com", s.got[0].To)
	assert.Equal(t, tplVerification, s.got[0].Template)
	assert.Contains(t, s.got[0].HTML, "123456")
	assert.Contains(t, s.got[0].HTML, "Ada")
}

func TestMailer_EscapesUserInput(t *testing.T) {
	s := &captureSender{}
	m := NewMailer(s)

	require.NoError(t, m.SendPasswordReset(context.Background(), "x@example.com", "<script>x</script>", "https://app/forgotpassword/1/t", time.Hour))
	assert.NotContains(t, s.got[0].HTML, "<script>")
	assert.Contains(t, s.got[0].HTML, `href="https://app/forgotpassword/1/t"`)
}

func TestMailer_ResetLinkLifetime(t *testing.T) {
	s := &captureSender{}
	m := NewMailer(s)

	require.NoError(t, m.SendPasswordReset(context.Background(), "r@example.com", "R", "https://app/x", 90*time.Minute))
	assert.Contains(t, s.got[0].HTML, "expires in 90 minutes")
	assert.NotContains(t, s.got[0].HTML, "24 hours")
}

func TestHumanDuration(t *testing.T) {
	cases := map[time.Duration]string{
		24 * time.Hour:   "24 hours",
		time.Hour:        "1 hour",
		90 * time.Minute: "90 minutes",
		time.Minute:      "1 minute",
		30 * time.Second: "30 seconds",
	}
	for d, want := range cases {
		assert.Equal(t, want, humanDuration(d), d.String())
	}
}

func TestMailer_SenderError(t *testing.T) {
	boom := errors.New("smtp down")
	m := NewMailer(&captureSender{err: boom})

	err := m.SendVerificationCode(context.Background(), "a@example.com", "A", "111111")
	assert.ErrorIs(t, err, boom)
}

func TestQueueSender_RoundTrip(t *testing.T) {
	pub := &capturePub{}
	m := NewMailer(NewQueueSender(pub, "auth.events", "mail.send"))
	require.NoError(t, m.SendPasswordReset(context.Background(), "r@example.com", "R", "https://app/x", 24*time.Hour))
	assert.Equal(t, "auth.events", pub.exchange)
	assert.Equal(t, "mail.send", pub.key)

	out := &captureSender{}
	h := DeliveryHandler(out, nil)
	require.NoError(t, h(context.Background(), pub.body))
	require.Len(t, out.got, 1)
	assert.Equal(t, "r@example.com", out.got[0].To)
	assert.Equal(t, tplReset, out.got[0].Template)
}

func TestDeliveryHandler_DropsGarbage(t *testing.T) {
	out := &captureSender{}
	var bad error
	h := DeliveryHandler(out, func(err error) { bad = err })

	assert.NoError(t, h(context.Background(), []byte("not json")))
	assert.Error(t, bad)
	assert.Empty(t, out.got)
}
