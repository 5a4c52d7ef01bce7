package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/linkshelf/linkshelf/pkg/email"
)

// AddressBook resolves a user's email address.
type AddressBook interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// AddressBookFunc adapts a function to AddressBook.
type AddressBookFunc func(ctx context.Context, userID string) (string, error)

func (f AddressBookFunc) EmailFor(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// EmailDeliverer renders a notification into an email.
type EmailDeliverer struct {
	sender    email.Sender
	addresses AddressBook
	appURL    string
}

func NewEmailDeliverer(sender email.Sender, addresses AddressBook, appURL string) *EmailDeliverer {
	if sender == nil {
		panic("notifications: email sender is required")
	}
	return &EmailDeliverer{sender: sender, addresses: addresses, appURL: strings.TrimRight(appURL, "/")}
}

func (d *EmailDeliverer) Deliver(ctx context.Context, n Notification) error {
	to := n.Email
	if to == "" {
		if d.addresses == nil {
			return errors.New("no address book configured")
		}
		var err error
		if to, err = d.addresses.EmailFor(ctx, n.UserID); err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
	}

	var body strings.Builder
	if err := notificationEmail(n, d.appURL).Render(ctx, &body); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	return d.sender.Send(ctx, email.Message{
		To:       to,
		Subject:  n.Title,
		HTMLBody: body.String(),
		TextBody: n.Message,
		Tag:      string(n.Kind),
	})
}

func notificationEmail(n Notification, appURL string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<!doctype html><html><body><h1>%s</h1><p>%s</p>%s</body></html>`,
			templ.EscapeString(n.Title),
			templ.EscapeString(n.Message),
			billingLink(appURL),
		)
		return err
	})
}

func billingLink(appURL string) string {
	if appURL == "" {
		return ""
	}
	return fmt.Sprintf(`<p><a href="%s/settings/billing">Manage billing</a></p>`, templ.EscapeString(appURL))
}
