// Package email sends transactional mail through Postmark, with a logging
// sender for local development.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@linkshelf.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@linkshelf.local"`
}

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email configuration")
	ErrInvalidMessage    = errors.New("invalid email message")
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To       string `json:"to" validate:"required,email"`
	Subject  string `json:"subject" validate:"required,max=998"`
	HTMLBody string `json:"html_body" validate:"required_without=TextBody"`
	TextBody string `json:"text_body"`
	Tag      string `json:"tag,omitempty" validate:"max=1000"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.PostmarkServerToken == "" || c.PostmarkAccountToken == "" {
		return fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig)
	}
	for _, addr := range []string{c.SenderEmail, c.SupportEmail} {
		if err := validate.Var(addr, "required,email"); err != nil {
			return fmt.Errorf("%w: %q is not a valid address", ErrInvalidConfig, addr)
		}
	}
	return nil
}
