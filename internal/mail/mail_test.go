package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledConfig() Config {
	return Config{
		Enabled:  true,
		Host:     "smtp.example.com",
		Port:     587,
		Username: "club",
		Password: "secret",
		From:     "club@example.com",
		Club:     "Night Owls Band",
	}
}

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newCapturingSender(t *testing.T, cfg Config, sendErr error) (*SMTPSender, *capturedMail) {
	t.Helper()
	s, err := NewSMTPSender(cfg)
	require.NoError(t, err)
	got := &capturedMail{}
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got.addr, got.from, got.to, got.msg = addr, from, to, string(msg)
		return sendErr
	}
	return s, got
}

func TestRender_AllTemplates(t *testing.T) {
	s, err := NewSMTPSender(enabledConfig())
	require.NoError(t, err)

	data := map[string]string{
		"real_name":  "Kim <b>Minji</b>",
		"username":   "minji",
		"email":      "minji@example.com",
		"instrument": "drums",
		"motivation": "I love music",
	}
	for _, name := range []string{TemplateWelcome, TemplateApproval, TemplateApplicationApproved} {
		t.Run(name, func(t *testing.T) {
			subject, body, err := s.Render(Message{Template: name, To: "minji@example.com", Data: data})
			require.NoError(t, err)
			assert.Contains(t, subject, "Night Owls Band")
			assert.Contains(t, body, "Kim &lt;b&gt;Minji&lt;/b&gt;", "data must be escaped")
			assert.NotContains(t, body, "<b>Minji</b>")
		})
	}
}

func TestRender_Errors(t *testing.T) {
	s, err := NewSMTPSender(enabledConfig())
	require.NoError(t, err)

	_, _, err = s.Render(Message{Template: "newsletter"})
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, _, err = s.Render(Message{Template: TemplateWelcome, Data: map[string]string{"real_name": "A"}})
	assert.Error(t, err)
}

func TestRender_ApprovalIncludesInstrument(t *testing.T) {
	s, err := NewSMTPSender(enabledConfig())
	require.NoError(t, err)

	_, body, err := s.Render(Message{Template: TemplateApproval, Data: map[string]string{
		"real_name": "Lee", "username": "lee", "email": "lee@example.com", "instrument": UnspecifiedInstrument,
	}})
	require.NoError(t, err)
	assert.Contains(t, body, UnspecifiedInstrument)
}

func TestSend_Disabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enabled = false
	s, got := newCapturingSender(t, cfg, nil)

	sent, err := s.Send(context.Background(), Message{Template: TemplateWelcome, To: "a@b.com"})
	assert.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, got.addr, "nothing may be sent while disabled")
}

func TestSend_MissingHostCountsAsDisabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.Host = ""
	s, _ := newCapturingSender(t, cfg, nil)
	assert.False(t, s.Enabled())
}

func TestSend_Delivers(t *testing.T) {
	s, got := newCapturingSender(t, enabledConfig(), nil)

	sent, err := s.Send(context.Background(), Message{
		Template: TemplateWelcome,
		To:       "minji@example.com",
		Data:     map[string]string{"real_name": "Minji", "username": "minji", "email": "minji@example.com"},
	})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "club@example.com", got.from)
	assert.Equal(t, []string{"minji@example.com"}, got.to)
	assert.True(t, strings.HasPrefix(got.msg, "From: club@example.com\r\n"))
	assert.Contains(t, got.msg, "Content-Type: text/html")
	assert.Contains(t, got.msg, "Hello, Minji!")
}

func TestSend_FailureIsReported(t *testing.T) {
	s, _ := newCapturingSender(t, enabledConfig(), errors.New("connection refused"))

	sent, err := s.Send(context.Background(), Message{
		Template: TemplateWelcome,
		To:       "minji@example.com",
		Data:     map[string]string{"real_name": "Minji", "username": "minji", "email": "minji@example.com"},
	})
	assert.False(t, sent)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSend_RequiresRecipient(t *testing.T) {
	s, _ := newCapturingSender(t, enabledConfig(), nil)
	sent, err := s.Send(context.Background(), Message{Template: TemplateWelcome})
	assert.False(t, sent)
	assert.Error(t, err)
}
