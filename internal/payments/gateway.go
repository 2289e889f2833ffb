// Package payments talks to the external payment gateway. The booking core
// only consumes createPayment and getPaymentStatus; webhook verification and
// card vaulting stay with the gateway.
package payments

import (
	"context"
	"errors"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

var ErrNotConfigured = errors.New("payment gateway not configured")

type Request struct {
	BookingID   int64
	AmountCents int64
	Currency    string
	Description string
}

type Session struct {
	ExternalID  string
	RedirectURL string
}

type Gateway interface {
	CreatePayment(ctx context.Context, req Request) (Session, error)
	GetPaymentStatus(ctx context.Context, externalID string) (Status, error)
}
