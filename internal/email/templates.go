package email

import (
	"fmt"
	"strings"
	"time"
)

type Message struct {
	Subject string
	Body    string
}

// BookingDetails carries what a booking notice renders. Times are rendered in
// Location, UTC when nil.
type BookingDetails struct {
	OrganizationName string
	BookingID        int64
	Start            time.Time
	End              time.Time
	Location         *time.Location
	Courts           string
	TotalCents       int64
	Currency         string
	PaymentDeadline  *time.Time
	Reason           string
}

func FormatDateTimeRange(start, end time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	start, end = start.In(loc), end.In(loc)
	date := start.Format("Monday, Jan 2, 2006")
	timeRange := fmt.Sprintf("%s - %s %s", start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
	return date, timeRange
}

// FormatAmount renders integer minor units as a decimal amount with the currency code.
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}

func BuildBookingConfirmation(d BookingDetails) Message {
	org := orDefault(d.OrganizationName, "your club")
	date, timeRange := "TBD", "TBD"
	if !d.Start.IsZero() {
		date, timeRange = FormatDateTimeRange(d.Start, d.End, d.Location)
	}

	lines := []string{
		"Your court booking has been received.",
		"",
		fmt.Sprintf("Booking: #%d", d.BookingID),
		fmt.Sprintf("Club: %s", org),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
		fmt.Sprintf("Courts: %s", orDefault(d.Courts, "TBD")),
		fmt.Sprintf("Total: %s", FormatAmount(d.TotalCents, d.Currency)),
	}
	if d.PaymentDeadline != nil {
		loc := d.Location
		if loc == nil {
			loc = time.UTC
		}
		lines = append(lines, "",
			fmt.Sprintf("Complete payment by %s or the slot will be released.", d.PaymentDeadline.In(loc).Format("3:04 PM MST")))
	}

	return Message{
		Subject: fmt.Sprintf("Booking #%d - %s", d.BookingID, org),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildBookingCancellation(d BookingDetails) Message {
	org := orDefault(d.OrganizationName, "your club")
	date, timeRange := "TBD", "TBD"
	if !d.Start.IsZero() {
		date, timeRange = FormatDateTimeRange(d.Start, d.End, d.Location)
	}

	lines := []string{
		"Your court booking has been cancelled.",
		"",
		fmt.Sprintf("Booking: #%d", d.BookingID),
		fmt.Sprintf("Club: %s", org),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
		fmt.Sprintf("Courts: %s", orDefault(d.Courts, "TBD")),
	}
	if reason := strings.TrimSpace(d.Reason); reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}

	return Message{
		Subject: fmt.Sprintf("Booking #%d Cancelled - %s", d.BookingID, org),
		Body:    strings.Join(lines, "\n"),
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
