package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <p>Hello {{.Name}},</p>
  <p>Your verification code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>
</body>
</html>
`))

// SMTPSettings configures the SMTP relay.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends the code as an HTML email.
type SMTPNotifier struct {
	settings SMTPSettings
	send     sendMailFunc
	now      func() time.Time
}

// NewSMTPNotifier returns an SMTPNotifier using net/smtp.
func NewSMTPNotifier(s SMTPSettings) *SMTPNotifier {
	if s.Port == 0 {
		s.Port = 587
	}
	return &SMTPNotifier{settings: s, send: smtp.SendMail, now: time.Now}
}

func (n *SMTPNotifier) Channel() Channel { return ChannelEmail }

func (n *SMTPNotifier) SendVerificationCode(ctx context.Context, destination, displayName, code string, expiresAt time.Time) error {
	if n.settings.Host == "" || n.settings.From == "" {
		return fmt.Errorf("smtp: host and sender not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := n.buildMessage(destination, displayName, code, expiresAt)
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if n.settings.Username != "" {
		auth = smtp.PlainAuth("", n.settings.Username, n.settings.Password, n.settings.Host)
	}
	addr := net.JoinHostPort(n.settings.Host, strconv.Itoa(n.settings.Port))
	if err := n.send(addr, auth, n.settings.From, []string{destination}, msg); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) buildMessage(to, name, code string, expiresAt time.Time) ([]byte, error) {
	minutes := int(expiresAt.Sub(n.now()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	if name == "" {
		name = to
	}
	var body bytes.Buffer
	if err := verificationTemplate.Execute(&body, struct {
		Name    string
		Code    string
		Minutes int
	}{name, code, minutes}); err != nil {
		return nil, fmt.Errorf("smtp: render template: %w", err)
	}

	from := n.settings.From
	if n.settings.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", n.settings.FromName), n.settings.From)
	}
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Your verification code"))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
