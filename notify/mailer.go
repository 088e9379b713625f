// Package notify delivers password reset codes to account owners.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"

	auth "github.com/trialbridge/go-auth"
)

const defaultSubject = "Your password reset code"

// MailerConfig holds SMTP settings. Fields can be read from the environment
// with MailerConfigFromEnv.
type MailerConfig struct {
	Host     string        `env:"SMTP_HOST" koanf:"host"`
	Port     int           `env:"SMTP_PORT" koanf:"port"`
	Username string        `env:"SMTP_USERNAME" koanf:"username"`
	Password string        `env:"SMTP_PASSWORD" koanf:"password"`
	From     string        `env:"SMTP_FROM" koanf:"from"`
	Subject  string        `env:"SMTP_SUBJECT" koanf:"subject"`
	Retries  uint64        `env:"SMTP_RETRIES" koanf:"retries"`
	Backoff  time.Duration `env:"SMTP_BACKOFF" koanf:"backoff"`
}

// MailerConfigFromEnv reads a MailerConfig from SMTP_* variables.
func MailerConfigFromEnv() (MailerConfig, error) {
	return env.ParseAs[MailerConfig]()
}

// Validate checks if the Mailer configuration is valid.
func (c MailerConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("missing SMTP host")
	}
	if c.Port == 0 {
		return fmt.Errorf("missing SMTP port")
	}
	if c.From == "" {
		return fmt.Errorf("missing SMTP from address")
	}
	return nil
}

// Enabled reports whether enough is configured to send mail.
func (c MailerConfig) Enabled() bool {
	return c.Host != ""
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer is a CodeDeliverer sending reset codes over SMTP.
type Mailer struct {
	config MailerConfig
	dialer dialer
	ttl    time.Duration
}

var _ auth.CodeDeliverer = (*Mailer)(nil)

// NewMailer creates a Mailer. ttl is only used in the message text.
func NewMailer(cfg MailerConfig, ttl time.Duration) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Subject == "" {
		cfg.Subject = defaultSubject
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}

	return &Mailer{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		ttl:    ttl,
	}, nil
}

// Deliver sends code to email, retrying transient SMTP failures.
func (m *Mailer) Deliver(ctx context.Context, email, code string) error {
	msg := m.message(email, code)

	backoff := retry.WithMaxRetries(m.config.Retries, retry.NewExponential(m.config.Backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := m.dialer.DialAndSend(msg); err != nil {
			if isPermanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (m *Mailer) message(email, code string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", m.config.Subject)

	body := fmt.Sprintf("Your password reset code is %s.\n", code)
	if m.ttl > 0 {
		body += fmt.Sprintf("It expires in %s. If you did not ask for it you can ignore this email.\n", m.ttl)
	}
	msg.SetBody("text/plain", body)

	return msg
}

// isPermanent reports SMTP 5xx replies, which retrying can not fix.
func isPermanent(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code >= 500
}
