package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"competenest/internal/platform/config"
)

// Mailer sends contest notification emails over plain SMTP.
type Mailer struct {
	host string
	port string
	user string
	pass string
}

func New() *Mailer {
	cfg := config.AppConfig
	return &Mailer{host: cfg.SMTPHost, port: cfg.SMTPPort, user: cfg.SMTPUser, pass: cfg.SMTPPass}
}

// Send delivers one HTML message to the given recipients. Returns an error on
// any transport failure; callers treat sends as best-effort.
func (m *Mailer) Send(to []string, subject, htmlBody string) error {
	if m.host == "" || len(to) == 0 {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("From: " + m.user + "\r\n")
	msg.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)
	return smtp.SendMail(addr, auth, m.user, to, []byte(msg.String()))
}
