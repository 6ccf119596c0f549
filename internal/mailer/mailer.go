// Package mailer delivers verification emails over SMTP and fans admin
// alerts out to every configured channel.
package mailer

import (
	"context"
	"fmt"

	"github.com/Fi44er/email_attestation_bot/utils"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

type Mail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
	FromName  string
	// PerSecond limits outgoing mail. Zero means unlimited.
	PerSecond float64
}

type Sender struct {
	fromEmail string
	fromName  string
	limiter   *rate.Limiter
	logger    *utils.Logger
	send      func(m ...*gomail.Message) error
}

func NewSender(cfg Config, logger *utils.Logger) *Sender {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return newSender(cfg, logger, dialer.DialAndSend)
}

func newSender(cfg Config, logger *utils.Logger, send func(m ...*gomail.Message) error) *Sender {
	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	return &Sender{
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
		send:      send,
	}
}

func (s *Sender) SendMail(ctx context.Context, m Mail) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.fromEmail, s.fromName)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Text)
	if m.HTML != "" {
		msg.AddAlternative("text/html", m.HTML)
	}

	if err := s.send(msg); err != nil {
		s.logger.Errorf("failed to send mail to %s: %v", m.To, err)
		return fmt.Errorf("failed to send mail to %s: %w", m.To, err)
	}
	s.logger.Infof("mail %q sent to %s", m.Subject, m.To)
	return nil
}
