// Package mail renders and delivers notification emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"clubhub/internal/middleware"
)

// Template names.
const (
	TemplateWelcome             = "welcome"
	TemplateApproval            = "approval"
	TemplateApplicationApproved = "application_approved"
)

// UnspecifiedInstrument is used when an approved member has no instrument on file.
const UnspecifiedInstrument = "unspecified"

//go:embed templates/*.html
var templateFS embed.FS

type templateSpec struct {
	subject  string
	required []string
}

var catalogue = map[string]templateSpec{
	TemplateWelcome:             {subject: "Welcome to %s", required: []string{"real_name", "username", "email"}},
	TemplateApproval:            {subject: "Your %s membership has been approved", required: []string{"real_name", "username", "email"}},
	TemplateApplicationApproved: {subject: "Your %s application has been accepted", required: []string{"real_name", "email"}},
}

// ErrUnknownTemplate is returned for template names outside the catalogue.
var ErrUnknownTemplate = errors.New("unknown email template")

// Message is one email to render and deliver.
type Message struct {
	Template string
	To       string
	Subject  string
	Data     map[string]string
}

// Sender delivers messages. sent is false when delivery is switched off or failed.
type Sender interface {
	Send(ctx context.Context, msg Message) (sent bool, err error)
}

// Config carries SMTP settings.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Club     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender renders the embedded templates and sends them with net/smtp.
type SMTPSender struct {
	cfg       Config
	templates map[string]*template.Template
	send      sendFunc
	timeout   time.Duration
}

// NewSMTPSender parses every template up front so a broken template fails at startup.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Club == "" {
		cfg.Club = "clubhub"
	}
	parsed := make(map[string]*template.Template, len(catalogue))
	for name := range catalogue {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse email template %s: %w", name, err)
		}
		parsed[name] = t
	}
	return &SMTPSender{cfg: cfg, templates: parsed, send: smtp.SendMail, timeout: 30 * time.Second}, nil
}

// Enabled reports whether the sender will attempt delivery.
func (s *SMTPSender) Enabled() bool {
	return s.cfg.Enabled && s.cfg.Host != "" && s.cfg.Port > 0 && s.cfg.From != ""
}

// Render returns the subject and HTML body for msg.
func (s *SMTPSender) Render(msg Message) (subject string, body string, err error) {
	entry, ok := catalogue[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, msg.Template)
	}
	for _, key := range entry.required {
		if strings.TrimSpace(msg.Data[key]) == "" {
			return "", "", fmt.Errorf("email template %s: missing %q", msg.Template, key)
		}
	}

	subject = msg.Subject
	if subject == "" {
		subject = fmt.Sprintf(entry.subject, s.cfg.Club)
	}

	var buf bytes.Buffer
	err = s.templates[msg.Template].ExecuteTemplate(&buf, "layout", map[string]any{
		"Subject": subject,
		"Club":    s.cfg.Club,
		"Data":    msg.Data,
	})
	if err != nil {
		return "", "", fmt.Errorf("render email template %s: %w", msg.Template, err)
	}
	return subject, buf.String(), nil
}

// Send renders and delivers msg. With mail disabled it logs and returns false, nil.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (bool, error) {
	if !s.Enabled() {
		middleware.Logger.InfoContext(ctx, "email disabled, skipping delivery",
			slog.String("template", msg.Template))
		return false, nil
	}
	if strings.TrimSpace(msg.To) == "" {
		return false, errors.New("email recipient is required")
	}

	subject, body, err := s.Render(msg)
	if err != nil {
		return false, err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.From, []string{msg.To}, buildMessage(s.cfg.From, msg.To, subject, body))
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(s.timeout):
		return false, fmt.Errorf("smtp send to %s timed out", addr)
	case err := <-done:
		if err != nil {
			return false, fmt.Errorf("smtp send: %w", err)
		}
	}
	return true, nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
