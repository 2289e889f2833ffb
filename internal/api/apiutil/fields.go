package apiutil

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/codr1/Courtside/internal/slots"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be a positive integer"}
	}
	return value, nil
}

// PathID parses the named path wildcard as a positive id.
func PathID(r *http.Request, name string) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue(name), name)
}

// DateFromQuery parses ?<key>=YYYY-MM-DD. A missing value yields fallback.
func DateFromQuery(r *http.Request, key string, fallback slots.Date) (slots.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := slots.ParseDate(raw)
	if err != nil {
		return slots.Date{}, FieldError{Field: key, Reason: "must be a date in YYYY-MM-DD form"}
	}
	return d, nil
}
