package email_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/email"
	"github.com/linkshelf/linkshelf/pkg/logger"
)

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	valid := email.Message{To: "ana@example.com", Subject: "Renewal", TextBody: "soon"}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.To = "not-an-address"
	assert.ErrorIs(t, bad.Validate(), email.ErrInvalidMessage)

	empty := valid
	empty.TextBody = ""
	assert.ErrorIs(t, empty.Validate(), email.ErrInvalidMessage)
}

func TestNewPostmarkSender(t *testing.T) {
	t.Parallel()

	_, err := email.NewPostmarkSender(email.Config{SenderEmail: "a@example.com", SupportEmail: "b@example.com"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	_, err = email.NewPostmarkSender(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "nope",
		SupportEmail:         "b@example.com",
	})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	s, err := email.NewPostmarkSender(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "a@example.com",
		SupportEmail:         "b@example.com",
	})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	s := email.NewLogSender(logger.Noop())
	msg := email.Message{To: "ana@example.com", Subject: "Hi", HTMLBody: "<p>hi</p>"}
	require.NoError(t, s.Send(context.Background(), msg))
	assert.Error(t, s.Send(context.Background(), email.Message{}))
	assert.Equal(t, []email.Message{msg}, s.Sent())
}
