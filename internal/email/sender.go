package email

import "context"

// EmailSender is the delivery backend behind Notifier.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
	SendFrom(ctx context.Context, recipient, subject, body, sender string) error
}

var _ EmailSender = (*SESClient)(nil)
