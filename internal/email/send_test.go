package email

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEmailSender struct {
	sendFromCalls int32
	delivered     chan sentMessage
	ctxErr        chan error
}

type sentMessage struct {
	recipient, subject, body, sender string
}

func newFakeEmailSender() *fakeEmailSender {
	return &fakeEmailSender{
		delivered: make(chan sentMessage, 1),
		ctxErr:    make(chan error, 1),
	}
}

func (f *fakeEmailSender) Send(ctx context.Context, recipient, subject, body string) error {
	return f.SendFrom(ctx, recipient, subject, body, "")
}

func (f *fakeEmailSender) SendFrom(ctx context.Context, recipient, subject, body, sender string) error {
	atomic.AddInt32(&f.sendFromCalls, 1)
	select {
	case <-ctx.Done():
		f.ctxErr <- ctx.Err()
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	f.delivered <- sentMessage{recipient, subject, body, sender}
	return nil
}

func waitForMessage(t *testing.T, f *fakeEmailSender) sentMessage {
	t.Helper()

	select {
	case m := <-f.delivered:
		return m
	case err := <-f.ctxErr:
		t.Fatalf("send aborted: %v", err)
	case <-time.After(time.Second):
		t.Fatal("expected email to be delivered")
	}
	return sentMessage{}
}

func TestNotifier_SendSurvivesRequestCancellation(t *testing.T) {
	sender := newFakeEmailSender()
	n := NewNotifier(sender, "bookings@club.test")

	ctx, cancel := context.WithCancel(context.Background())
	n.SendBookingConfirmation(ctx, " player@example.com ", BookingDetails{BookingID: 7, OrganizationName: "Riverside"})
	cancel()

	msg := waitForMessage(t, sender)
	if msg.recipient != "player@example.com" {
		t.Errorf("recipient = %q", msg.recipient)
	}
	if msg.sender != "bookings@club.test" {
		t.Errorf("sender = %q", msg.sender)
	}
	if !strings.Contains(msg.subject, "#7") {
		t.Errorf("subject = %q", msg.subject)
	}
}

func TestNotifier_SkipsWithoutRecipientOrSender(t *testing.T) {
	sender := newFakeEmailSender()
	n := NewNotifier(sender, "")
	n.SendBookingCancellation(context.Background(), "   ", BookingDetails{BookingID: 1})

	var nilNotifier *Notifier
	nilNotifier.SendBookingConfirmation(context.Background(), "player@example.com", BookingDetails{})

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&sender.sendFromCalls); got != 0 {
		t.Fatalf("expected no sends, got %d", got)
	}
}

func TestBuildBookingConfirmation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}
	start := time.Date(2025, 3, 10, 17, 0, 0, 0, loc)
	deadline := start.Add(-2 * time.Hour)
	msg := BuildBookingConfirmation(BookingDetails{
		OrganizationName: "Riverside",
		BookingID:        42,
		Start:            start.UTC(),
		End:              start.Add(3 * time.Hour).UTC(),
		Location:         loc,
		Courts:           "Court 1",
		TotalCents:       8000,
		Currency:         "usd",
		PaymentDeadline:  &deadline,
	})

	for _, want := range []string{
		"Booking: #42",
		"Date: Monday, Mar 10, 2025",
		"Time: 5:00 PM - 8:00 PM EDT",
		"Total: 80.00 USD",
		"Complete payment by 3:00 PM EDT",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestBuildBookingCancellation(t *testing.T) {
	msg := BuildBookingCancellation(BookingDetails{BookingID: 3, Reason: "court resurfacing"})
	if msg.Subject != "Booking #3 Cancelled - your club" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Reason: court resurfacing") {
		t.Errorf("body missing reason:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "Date: TBD") {
		t.Errorf("body should fall back to TBD date:\n%s", msg.Body)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{0, "usd", "0.00 USD"},
		{8000, "usd", "80.00 USD"},
		{2005, "thb", "20.05 THB"},
		{-150, "USD", "-1.50 USD"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.cents, tt.currency); got != tt.want {
			t.Errorf("FormatAmount(%d, %q) = %q, want %q", tt.cents, tt.currency, got, tt.want)
		}
	}
}
