package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const sendTimeout = 5 * time.Second

// Notifier delivers booking notices in the background. A nil Notifier or one
// without a sender drops every message.
type Notifier struct {
	sender  EmailSender
	from    string
	timeout time.Duration
}

func NewNotifier(sender EmailSender, from string) *Notifier {
	return &Notifier{sender: sender, from: from, timeout: sendTimeout}
}

func (n *Notifier) SendBookingConfirmation(ctx context.Context, recipient string, d BookingDetails) {
	n.sendAsync(ctx, recipient, BuildBookingConfirmation(d), d.BookingID)
}

func (n *Notifier) SendBookingCancellation(ctx context.Context, recipient string, d BookingDetails) {
	n.sendAsync(ctx, recipient, BuildBookingCancellation(d), d.BookingID)
}

func (n *Notifier) sendAsync(ctx context.Context, recipient string, msg Message, bookingID int64) {
	if n == nil || n.sender == nil {
		return
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return
	}
	logger := log.Ctx(ctx).With().Int64("booking_id", bookingID).Logger()

	go func() {
		sendCtx, cancel := newEmailContext(ctx, n.timeout)
		defer cancel()
		if err := n.sender.SendFrom(sendCtx, recipient, msg.Subject, msg.Body, n.from); err != nil {
			logger.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send booking email")
		}
	}()
}
