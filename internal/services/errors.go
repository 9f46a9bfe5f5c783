package services

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned for unknown account or withdrawal ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount rejects non-positive credit or withdrawal amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrEmptyDescription rejects withdrawal requests without a description.
	ErrEmptyDescription = errors.New("description must not be empty")

	// ErrInvalidWindow rejects aggregation windows outside {7, 30, 90}.
	ErrInvalidWindow = errors.New("window must be one of 7, 30 or 90 days")

	// ErrUnsupportedBank rejects payout destinations outside the bank catalogue.
	ErrUnsupportedBank = errors.New("unsupported payout bank code")

	// ErrInsufficientFunds means a reservation exceeds the available amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyResolved means the withdrawal request is no longer PENDING.
	ErrAlreadyResolved = errors.New("withdrawal request already resolved")

	// ErrLockTimeout means the account row lock could not be acquired.
	// Transient; the withdrawal workflow retries it once.
	ErrLockTimeout = errors.New("account is busy, try again")
)

// sendServiceError maps the error taxonomy onto HTTP status codes so every
// handler surfaces the same caller-visible behavior.
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, "Not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrEmptyDescription),
		errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrUnsupportedBank):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, "Insufficient funds", http.StatusUnprocessableEntity, nil)
	case errors.Is(err, ErrAlreadyResolved):
		SendErrorResponse(w, "Withdrawal already processed", http.StatusConflict, nil)
	case errors.Is(err, ErrLockTimeout):
		SendErrorResponse(w, err.Error(), http.StatusServiceUnavailable, nil)
	default:
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
