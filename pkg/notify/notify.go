// Package notify delivers alert notifications. Delivery is best effort:
// callers log failures and move on.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/switchyard-net/switchyard/pkg/config"
)

// Notifier sends one alert message to the configured recipients.
type Notifier interface {
	Notify(subject, message string) error
}

// Nop is used when no recipients are configured.
type Nop struct{}

func (Nop) Notify(subject, message string) error { return nil }

// Mailer sends alerts over SMTP.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// NewMailer returns a Mailer, or Nop when no recipients are configured.
func NewMailer(cfg *config.Config) Notifier {
	if len(cfg.EmailTo) == 0 || cfg.SMTPHost == "" {
		return Nop{}
	}
	from := cfg.EmailFrom
	if from == "" {
		from = "alerts@switchyard.local"
	}
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     from,
		to:       cfg.EmailTo,
	}
}

func (m *Mailer) Notify(subject, message string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	body := strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(m.to, ", "),
		"Subject: " + subject,
		"",
		message,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.from, m.to, []byte(body)); err != nil {
		return fmt.Errorf("sending alert mail: %w", err)
	}
	return nil
}
