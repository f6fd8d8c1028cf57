// Package mail dispatches transactional email over SMTP.
package mail

import (
	"errors"
	"fmt"
	"strings"

	"github.com/orstracker/apiserver/config"
	gomail "gopkg.in/gomail.v2"
)

// Mailer sends a single message to one recipient.
type Mailer interface {
	Send(to, subject, text, html string) error
}

// SMTPMailer sends mail through a configured SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer constructs an SMTPMailer from config.
func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:   cfg.From,
	}, nil
}

// Send delivers one message. Failures surface to the caller untouched.
func (m *SMTPMailer) Send(to, subject, text, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	if html != "" {
		msg.AddAlternative("text/html", html)
	}
	return m.dialer.DialAndSend(msg)
}

// ResetMail builds the password-reset message for the given OTP and
// frontend reset link.
func ResetMail(otp, resetLink string) (subject, text, html string) {
	subject = "Password Reset Code"
	text = fmt.Sprintf("Your password reset code is %s. It expires in 15 minutes. Continue at: %s", otp, resetLink)
	html = fmt.Sprintf(
		`<p>Your password reset code is <b>%s</b>. It expires in 15 minutes.</p><p>Continue <a href="%s">here</a>.</p>`,
		otp, resetLink,
	)
	return subject, text, html
}
