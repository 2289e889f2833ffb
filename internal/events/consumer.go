package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// PaymentResult is the payload of payment.paid and payment.failed.
type PaymentResult struct {
	Event   string `json:"event"`
	Version int    `json:"version"`
	Data    struct {
		PaymentID string `json:"payment_id"`
		BookingID string `json:"booking_id"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		IdemKey   string `json:"idempotency_key"`
	} `json:"data"`
}

// PaymentApplier applies a gateway result to the booking lifecycle.
type PaymentApplier interface {
	ConfirmPaymentResult(ctx context.Context, bookingID int64, externalID string) error
	FailPaymentResult(ctx context.Context, bookingID int64) error
}

// Ledger records consumed message ids so redeliveries are skipped.
type Ledger interface {
	EventProcessed(ctx context.Context, id string) (bool, error)
	MarkEventProcessed(ctx context.Context, id, eventKey string) (bool, error)
}

type ackDecision int

const (
	ack ackDecision = iota
	requeue
	drop
)

type PaymentConsumer struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	applier PaymentApplier
	ledger  Ledger
}

func NewPaymentConsumer(url, exchange, queue string, applier PaymentApplier, ledger Ledger) (*PaymentConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	for _, rk := range []string{PaymentPaid, PaymentFailed} {
		if err := ch.QueueBind(q.Name, rk, exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("bind %s: %w", rk, err)
		}
	}
	return &PaymentConsumer{conn: conn, ch: ch, queue: q.Name, applier: applier, ledger: ledger}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (pc *PaymentConsumer) Run(ctx context.Context) error {
	msgs, err := pc.ch.ConsumeWithContext(ctx, pc.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", pc.queue, err)
	}
	logger := log.Ctx(ctx).With().Str("component", "payment_consumer").Logger()
	ctx = logger.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			switch pc.handle(ctx, d.RoutingKey, d.MessageId, d.Body) {
			case ack:
				_ = d.Ack(false)
			case requeue:
				_ = d.Nack(false, true)
			case drop:
				_ = d.Nack(false, false)
			}
		}
	}
}

func (pc *PaymentConsumer) handle(ctx context.Context, routingKey, messageID string, body []byte) ackDecision {
	logger := log.Ctx(ctx)

	if routingKey != PaymentPaid && routingKey != PaymentFailed {
		return ack
	}

	var evt PaymentResult
	if err := json.Unmarshal(body, &evt); err != nil {
		logger.Error().Err(err).Str("routing_key", routingKey).Msg("Dropping malformed payment event")
		return drop
	}
	bookingID, err := strconv.ParseInt(evt.Data.BookingID, 10, 64)
	if err != nil || bookingID <= 0 || evt.Data.PaymentID == "" {
		logger.Warn().Str("routing_key", routingKey).Str("booking_id", evt.Data.BookingID).Msg("Ignoring payment event with invalid payload")
		return ack
	}

	eventID := messageID
	if eventID == "" {
		eventID = evt.Data.IdemKey
	}
	if eventID == "" {
		eventID = routingKey + ":" + evt.Data.PaymentID
	}

	seen, err := pc.ledger.EventProcessed(ctx, eventID)
	if err != nil {
		logger.Error().Err(err).Str("event_id", eventID).Msg("Failed to check payment event ledger")
		return requeue
	}
	if seen {
		logger.Debug().Str("event_id", eventID).Msg("Skipping already processed payment event")
		return ack
	}

	switch routingKey {
	case PaymentPaid:
		err = pc.applier.ConfirmPaymentResult(ctx, bookingID, evt.Data.PaymentID)
	case PaymentFailed:
		err = pc.applier.FailPaymentResult(ctx, bookingID)
	}
	if err != nil {
		logger.Error().Err(err).Int64("booking_id", bookingID).Str("routing_key", routingKey).Msg("Failed to apply payment event")
		return requeue
	}

	if _, err := pc.ledger.MarkEventProcessed(ctx, eventID, routingKey); err != nil {
		logger.Warn().Err(err).Str("event_id", eventID).Msg("Failed to record processed payment event")
	}
	return ack
}

func (pc *PaymentConsumer) Close() error {
	if pc.ch != nil {
		_ = pc.ch.Close()
	}
	if pc.conn != nil {
		return pc.conn.Close()
	}
	return nil
}
