package handlers

import (
	"net/http"
	"strconv"

	"kixikila/internal/money"
	"kixikila/internal/validator"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// page reads limit and offset, clamping them to sane bounds.
func page(r *http.Request) (int, int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseAmountMinor converts an already validated money string. The money
// tag guarantees it parses; the check is kept for callers without tags.
func parseAmountMinor(field, raw string) (int64, error) {
	amount, err := money.ParsePositiveMinor(raw)
	if err != nil {
		return 0, &validator.Error{Fields: []validator.FieldError{{Field: field, Message: "must be a positive amount with at most 2 decimals"}}}
	}
	return amount, nil
}

func fieldError(field, message string) error {
	return &validator.Error{Fields: []validator.FieldError{{Field: field, Message: message}}}
}
