package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPMailer 透過 SMTP 寄送 HTML 郵件；開發環境預設連到本機 1025 (MailHog)
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: &gomail.Dialer{Host: host, Port: port},
		from:   from,
	}
}

// Message 組出郵件內容，不寄送
func (m *SMTPMailer) Message(to, subject, htmlBody string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	return msg
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if err := m.dialer.DialAndSend(m.Message(to, subject, htmlBody)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}
