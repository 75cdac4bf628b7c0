// Package email delivers password reset mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"
	"time"

	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// ResetTTL is printed in the reset mail; zero means one hour.
	ResetTTL time.Duration
}

// Service sends console mail through gomail. Delivery is swappable for tests.
type Service struct {
	config Config
	send   func(*gomail.Message) error
}

func NewService(config Config) *Service {
	if config.ResetTTL <= 0 {
		config.ResetTTL = time.Hour
	}
	s := &Service{config: config}
	s.send = s.dialAndSend
	return s
}

// IsConfigured reports whether host, port and sender are all set.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) dialAndSend(msg *gomail.Message) error {
	port, err := strconv.Atoi(s.config.Port)
	if err != nil {
		return fmt.Errorf("smtp port %q: %w", s.config.Port, err)
	}
	return gomail.NewDialer(s.config.Host, port, s.config.Username, s.config.Password).DialAndSend(msg)
}

// resetMail is the data both reset templates render.
type resetMail struct {
	UserName  string
	ResetURL  string
	ExpiresIn string
}

// SendPasswordResetEmail mails a reset link with a plain text part and an
// HTML alternative.
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	data := resetMail{UserName: userName, ResetURL: resetURL, ExpiresIn: expiryLabel(s.config.ResetTTL)}

	var text, html bytes.Buffer
	if err := resetText.Execute(&text, data); err != nil {
		return fmt.Errorf("render reset text: %w", err)
	}
	if err := resetHTML.Execute(&html, data); err != nil {
		return fmt.Errorf("render reset html: %w", err)
	}

	msg := gomail.NewMessage()
	if s.config.FromName != "" {
		msg.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		msg.SetHeader("From", s.config.From)
	}
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Redefinição de senha - Astrixo")
	msg.SetBody("text/plain", text.String())
	msg.AddAlternative("text/html", html.String())
	if err := s.send(msg); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// expiryLabel renders a ttl in Portuguese, rounded to whole minutes or hours.
func expiryLabel(ttl time.Duration) string {
	if ttl < time.Hour {
		minutes := int(ttl.Round(time.Minute) / time.Minute)
		if minutes <= 1 {
			return "1 minuto"
		}
		return fmt.Sprintf("%d minutos", minutes)
	}
	hours := int(ttl.Round(time.Hour) / time.Hour)
	if hours == 1 {
		return "1 hora"
	}
	return fmt.Sprintf("%d horas", hours)
}

var resetText = texttemplate.Must(texttemplate.New("reset.txt").Parse(
	"Olá {{.UserName}},\n\nPara redefinir sua senha no painel Astrixo acesse:\n{{.ResetURL}}\n\nO link expira em {{.ExpiresIn}}.\n"))

var resetHTML = htmltemplate.Must(htmltemplate.New("reset.html").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Redefinir senha - Astrixo</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f1f29; max-width: 560px; margin: 0 auto; padding: 24px; }
        .brand { color: #6d28d9; font-weight: 700; font-size: 22px; }
        .button { display: inline-block; padding: 12px 24px; background: #6d28d9; color: #fff; text-decoration: none; border-radius: 6px; }
        .link { word-break: break-all; color: #6d28d9; }
        .muted { font-size: 12px; color: #6b6b7b; }
    </style>
</head>
<body>
    <p class="brand">Astrixo Admin</p>
    <p>Olá {{.UserName}},</p>
    <p>Recebemos um pedido para redefinir a senha da sua conta de administrador.</p>
    <p><a href="{{.ResetURL}}" class="button">Redefinir senha</a></p>
    <p>Se o botão não funcionar, copie este endereço:</p>
    <p class="link">{{.ResetURL}}</p>
    <p><strong>O link expira em {{.ExpiresIn}}.</strong></p>
    <p class="muted">Se você não pediu a redefinição, ignore este email.</p>
</body>
</html>`))
