package mailer

import (
	"fmt"

	"blog_service/internal/models"

	"gopkg.in/gomail.v2"
)

const (
	TemplateVerifyEmail    = "verify_email"
	TemplateForgotPassword = "forgot_password"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SendMessage renders the message body from its template name and
// delivers it over SMTP.
func (m *Mailer) SendMessage(msg models.EmailMessage) error {
	const op = "mailer.SendMessage"

	body, err := renderBody(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	mail := gomail.NewMessage()
	mail.SetHeader("To", msg.To)
	mail.SetHeader("From", m.Username)
	mail.SetHeader("Subject", msg.Subject)

	mail.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)

	return dialer.DialAndSend(mail)
}

func renderBody(msg models.EmailMessage) (string, error) {
	switch msg.Template {
	case TemplateVerifyEmail:
		return fmt.Sprintf(
			"Your verification code is: %s\n\nThe code is valid for %s.",
			msg.Vars["code"], msg.Vars["ttl"],
		), nil
	case TemplateForgotPassword:
		return fmt.Sprintf(
			"Your new password is: %s\n\nUse it to log in and change your password afterwards.",
			msg.Vars["password"],
		), nil
	default:
		return "", fmt.Errorf("unknown template %q", msg.Template)
	}
}
