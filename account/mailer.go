package account

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/arenh/gomphos/util"
)

// Mailer sends the one-time codes of the password reset flow.
type Mailer interface {
	SendOtp(to string, otp string) error
}

// SmtpMailer delivers mail through a plain SMTP relay.
type SmtpMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSmtpMailer(conf *util.AppConfig) *SmtpMailer {
	c := conf.Conf
	var auth smtp.Auth
	if c.SmtpUser != "" {
		auth = smtp.PlainAuth("", c.SmtpUser, c.SmtpPassword, c.SmtpHost)
	}
	return &SmtpMailer{
		addr: fmt.Sprintf("%s:%d", c.SmtpHost, c.SmtpPort),
		auth: auth,
		from: c.FromEmail,
	}
}

func (m *SmtpMailer) SendOtp(to string, otp string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Password reset code\r\n\r\nYour password reset code is %s. It expires in 10 minutes.\r\n", m.from, to, otp)
	return smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg))
}

// LogMailer is used when no SMTP relay is configured; codes still
// reach the operator through the log.
type LogMailer struct{}

func (LogMailer) SendOtp(to string, otp string) error {
	log.Printf("Mail: Password reset code for %s: %s", to, otp)
	return nil
}
