package notify

import (
	"bytes"
	"context"
	"errors"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type stubDialer struct {
	errs  []error
	calls int
	sent  []*gomail.Message
}

func (d *stubDialer) DialAndSend(m ...*gomail.Message) error {
	d.calls++
	d.sent = append(d.sent, m...)
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

func newTestMailer(t *testing.T, d dialer) *Mailer {
	t.Helper()
	m, err := NewMailer(MailerConfig{
		Host:    "smtp.example.com",
		Port:    2525,
		From:    "noreply@example.com",
		Retries: 2,
		Backoff: time.Millisecond,
	}, 15*time.Minute)
	require.NoError(t, err)
	m.dialer = d
	return m
}

func TestMailerDeliver(t *testing.T) {
	d := &stubDialer{}
	m := newTestMailer(t, d)

	require.NoError(t, m.Deliver(context.Background(), "alice@x.com", "123456"))
	require.Equal(t, 1, d.calls)

	msg := d.sent[0]
	assert.Equal(t, []string{"alice@x.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{defaultSubject}, msg.GetHeader("Subject"))

	var body bytes.Buffer
	_, err := msg.WriteTo(&body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "123456")
	assert.Contains(t, body.String(), "15m0s")
}

func TestMailerRetriesTransientFailures(t *testing.T) {
	d := &stubDialer{errs: []error{errors.New("connection reset"), errors.New("timeout")}}
	m := newTestMailer(t, d)

	require.NoError(t, m.Deliver(context.Background(), "alice@x.com", "123456"))
	assert.Equal(t, 3, d.calls)
}

func TestMailerGivesUpAfterRetries(t *testing.T) {
	down := errors.New("connection refused")
	d := &stubDialer{errs: []error{down, down, down, down}}
	m := newTestMailer(t, d)

	err := m.Deliver(context.Background(), "alice@x.com", "123456")
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 3, d.calls)
}

func TestMailerDoesNotRetryPermanentReplies(t *testing.T) {
	rejected := &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	d := &stubDialer{errs: []error{rejected}}
	m := newTestMailer(t, d)

	err := m.Deliver(context.Background(), "alice@x.com", "123456")
	require.Error(t, err)
	assert.Equal(t, 1, d.calls)

	assert.True(t, isPermanent(rejected))
	assert.False(t, isPermanent(&textproto.Error{Code: 421, Msg: "try later"}))
	assert.False(t, isPermanent(errors.New("plain")))
}
