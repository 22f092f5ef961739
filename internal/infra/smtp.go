package infra

import (
	"fmt"
	"net/smtp"

	"traceability/internal/config"

	"github.com/jordan-wright/email"
)

// Mailer sends recall notifications over SMTP with the report attached.
type Mailer struct {
	host     string
	user     string
	password string
	addr     string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
	}
}

// Configured reports whether an SMTP host was set.
func (m *Mailer) Configured() bool { return m.host != "" }

// Send delivers one message. attachment may be empty.
func (m *Mailer) Send(to []string, subject, body, attachment string) error {
	e := email.NewEmail()
	e.From = m.user
	e.To = to
	e.Subject = subject
	e.Text = []byte(body)

	if attachment != "" {
		if _, err := e.AttachFile(attachment); err != nil {
			return fmt.Errorf("mailer: attach %s: %w", attachment, err)
		}
	}

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	if err := e.Send(m.addr, auth); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	return nil
}
