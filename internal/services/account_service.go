package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/venuepay/backend/internal/models"
)

// recentWithdrawalLimit caps the owner summary's history preview.
const recentWithdrawalLimit = 10

// AccountService is the read-only projection layer for the owner dashboard
// and the admin console. Summaries are computed on read so they always
// reflect the latest ledger mutations.
type AccountService struct {
	db     *sql.DB
	ledger *LedgerService
}

func NewAccountService(db *sql.DB, ledger *LedgerService) *AccountService {
	return &AccountService{db: db, ledger: ledger}
}

// GetOwnerSummary returns the owner dashboard's headline view.
func (as *AccountService) GetOwnerSummary(ctx context.Context, accountID string) (*models.OwnerSummary, error) {
	account, err := as.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	rows, err := as.db.QueryContext(ctx, `
		SELECT id, account_id, description, amount, bank_code, bank_account, status, payout_reference, created_at, resolved_at
		FROM withdrawal_requests
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, recentWithdrawalLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recent := []models.WithdrawalRequest{}
	for rows.Next() {
		var wr models.WithdrawalRequest
		var resolvedAt sql.NullTime
		if err := rows.Scan(&wr.ID, &wr.AccountID, &wr.Description, &wr.Amount, &wr.BankCode, &wr.BankAccount,
			&wr.Status, &wr.PayoutReference, &wr.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			wr.ResolvedAt = &resolvedAt.Time
		}
		recent = append(recent, wr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.OwnerSummary{
		AccountID:         account.AccountID,
		Balance:           account.Balance,
		AvailableAmount:   account.AvailableAmount,
		RecentWithdrawals: recent,
	}, nil
}

// GetAdminSummary aggregates all owner accounts and the full withdrawal
// queue. Nothing is cached; every call reads the live tables.
func (as *AccountService) GetAdminSummary(ctx context.Context) (*models.AdminSummary, error) {
	summary := &models.AdminSummary{
		PerAccountTotals: []models.AccountTotal{},
		WithdrawalBreakdown: map[string]models.StatusBreakdown{
			models.WithdrawalPending:  {},
			models.WithdrawalApproved: {},
			models.WithdrawalRejected: {},
		},
	}

	rows, err := as.db.QueryContext(ctx, `
		SELECT account_id, balance, available_amount
		FROM accounts
		WHERE role = $1
		ORDER BY balance DESC`, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t models.AccountTotal
		if err := rows.Scan(&t.AccountID, &t.Balance, &t.AvailableAmount); err != nil {
			return nil, err
		}
		summary.PerAccountTotals = append(summary.PerAccountTotals, t)
		summary.AccountCount++
		summary.BalanceTotal += t.Balance
		summary.AvailableTotal += t.AvailableAmount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statusRows, err := as.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM withdrawal_requests
		GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var status string
		var b models.StatusBreakdown
		if err := statusRows.Scan(&status, &b.Count, &b.AmountSum); err != nil {
			return nil, err
		}
		summary.WithdrawalBreakdown[status] = b
	}
	if err := statusRows.Err(); err != nil {
		return nil, err
	}

	return summary, nil
}

// GetAccountHandler serves one account projection
// @Summary Get account
// @Tags accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountId} [get]
func (as *AccountService) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if !callerMayAccess(r, accountID) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	account, err := as.ledger.GetAccount(r.Context(), accountID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// GetOwnerSummaryHandler serves the owner dashboard summary
// @Summary Owner summary
// @Description Balance, available amount and recent withdrawals for one account
// @Tags accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Success 200 {object} models.OwnerSummary
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountId}/summary [get]
func (as *AccountService) GetOwnerSummaryHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if !callerMayAccess(r, accountID) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	summary, err := as.GetOwnerSummary(r.Context(), accountID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// GetAdminSummaryHandler serves the admin console aggregate view
// @Summary Admin summary
// @Description Per-account totals and withdrawal status breakdown, computed on read
// @Tags admin
// @Produce json
// @Success 200 {object} models.AdminSummary
// @Router /admin/summary [get]
func (as *AccountService) GetAdminSummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := as.GetAdminSummary(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
