// Package mailer delivers digest emails over SMTP.
package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/alpinisme/formation-sync/internal/course"
)

// Config holds SMTP transport settings plus the sender address.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends HTML mail through a single SMTP relay. It implements
// course.Mailer. Each Send opens its own connection; digest volume is a
// handful of messages per day so pooling is not worth the bookkeeping.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// New builds an SMTPMailer from transport settings.
func New(cfg Config, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

// Send delivers one HTML message. The context is honored before dialing;
// gomail itself has no context plumbing, so an in-flight delivery runs to
// completion.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}

	m.logger.Debug("mail sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

var _ course.Mailer = (*SMTPMailer)(nil)
