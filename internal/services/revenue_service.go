package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venuepay/backend/internal/models"
)

const dayLayout = "2006-01-02"

// revenueWindows is the fixed set of trailing windows the dashboard charts
// render; anything else is rejected rather than silently defaulted.
var revenueWindows = map[int]bool{7: true, 30: true, 90: true}

// RevenueService aggregates per-day revenue entries into gap-free trailing
// series and accepts revenue credits from the booking settlement process.
type RevenueService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
}

func NewRevenueService(db *sql.DB, ledger *LedgerService) *RevenueService {
	return &RevenueService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

// CreditPayload is the request body posted by the booking settlement hook.
type CreditPayload struct {
	Day    string `json:"day" validate:"required,datetime=2006-01-02"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

// Aggregate produces the trailing windowDays calendar days ending today
// (UTC, inclusive) in ascending order. Days without activity emit amount 0;
// the series length always equals windowDays.
func (rs *RevenueService) Aggregate(ctx context.Context, accountID string, windowDays int) (*models.RevenueSeries, error) {
	if !revenueWindows[windowDays] {
		return nil, ErrInvalidWindow
	}

	if _, err := rs.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(windowDays - 1))

	rows, err := rs.db.QueryContext(ctx, `
		SELECT day, amount
		FROM revenue_entries
		WHERE account_id = $1 AND day >= $2 AND day <= $3`,
		accountID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[string]int64)
	for rows.Next() {
		var day time.Time
		var amount int64
		if err := rows.Scan(&day, &amount); err != nil {
			return nil, err
		}
		byDay[day.UTC().Format(dayLayout)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	series := make([]models.RevenuePoint, 0, windowDays)
	var total int64
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		amount := byDay[key]
		series = append(series, models.RevenuePoint{Day: key, Amount: amount})
		total += amount
	}

	return &models.RevenueSeries{Series: series, Total: total}, nil
}

// GetRevenue serves the trailing revenue series
// @Summary Account revenue series
// @Description Zero-filled per-day revenue for a trailing 7, 30 or 90 day window
// @Tags revenue
// @Produce json
// @Param accountId path string true "Account ID"
// @Param window query int true "Window in days (7, 30 or 90)"
// @Success 200 {object} models.RevenueSeries
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountId}/revenue [get]
func (rs *RevenueService) GetRevenue(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if !callerMayAccess(r, accountID) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	window, err := strconv.Atoi(r.URL.Query().Get("window"))
	if err != nil {
		sendServiceError(w, ErrInvalidWindow)
		return
	}

	series, err := rs.Aggregate(r.Context(), accountID, window)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(series)
}

// CreditRevenue posts a booking settlement credit
// @Summary Credit revenue
// @Description Post one day's booking revenue to an account; same-day credits sum
// @Tags revenue
// @Accept json
// @Produce json
// @Param accountId path string true "Account ID"
// @Param credit body CreditPayload true "Credit data"
// @Success 200 {object} object{account_id=string,balance=int64,available_amount=int64}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountId}/revenue [post]
func (rs *RevenueService) CreditRevenue(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	var payload CreditPayload
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&payload); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := rs.validator.ValidateStruct(&payload); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	day, err := time.ParseInLocation(dayLayout, payload.Day, time.UTC)
	if err != nil {
		SendErrorResponse(w, "Invalid day format, expected YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}

	account, err := rs.ledger.CreditRevenue(r.Context(), accountID, day, payload.Amount)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	// Return the post-mutation balances so the settlement caller reads its
	// own write instead of polling.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account_id":       account.AccountID,
		"balance":          account.Balance,
		"available_amount": account.AvailableAmount,
	})
}
