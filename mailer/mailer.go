// Package mailer delivers OTP emails.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type Mailer interface {
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
}

var otpHTML = template.Must(template.New("otp").Parse(`<p>Your StegoShield verification code is</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>It expires in {{.Minutes}} minutes. If you did not ask to reset your password you can ignore this email.</p>`))

type otpData struct {
	Code    string
	Minutes int
}

func otpBodies(code string, ttl time.Duration) (string, string, error) {
	data := otpData{Code: code, Minutes: int(ttl.Minutes())}
	if data.Minutes < 1 {
		data.Minutes = 1
	}

	var html bytes.Buffer
	if err := otpHTML.Execute(&html, data); err != nil {
		return "", "", errors.Wrap(err, "render otp email")
	}
	plain := fmt.Sprintf("Your StegoShield verification code is %s. It expires in %d minutes.", code, data.Minutes)
	return plain, html.String(), nil
}

// SMTPMailer sends through an SMTP relay such as smtp.gmail.com:587.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, user, password string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   user,
	}
}

func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	plain, html, err := otpBodies(code, ttl)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your StegoShield password reset code")
	msg.SetBody("text/plain", plain)
	msg.AddAlternative("text/html", html)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		return errors.Wrapf(err, "send otp to %s", to)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogMailer writes codes to the log instead of sending them. It is used
// when no SMTP account is configured.
type LogMailer struct {
	Log *logrus.Logger
}

func (m *LogMailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	m.Log.WithFields(logrus.Fields{
		"to":  to,
		"ttl": ttl.String(),
	}).Infof("otp email not sent, code %s", code)
	return nil
}
