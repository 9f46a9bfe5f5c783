package services

import (
	"context"
	"net/http"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/venuepay/backend/internal/models"
)

func accountFixture(id string, balance, available int64, version int) *models.Account {
	return &models.Account{
		AccountID:       id,
		Balance:         balance,
		AvailableAmount: available,
		Version:         version,
	}
}

func withdrawalColumns() []string {
	return []string{"id", "account_id", "description", "amount", "bank_code", "bank_account",
		"status", "payout_reference", "created_at", "resolved_at"}
}

func withdrawalRow(id, accountID string, amount int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows(withdrawalColumns()).
		AddRow(id, accountID, "payout", amount, "014", "1234567890", status, "", time.Now(), nil)
}

// asCaller stamps the request context the way AuthMiddleware does.
func asCaller(r *http.Request, accountID, role string) *http.Request {
	ctx := context.WithValue(r.Context(), "accountID", accountID)
	ctx = context.WithValue(ctx, "role", role)
	return r.WithContext(ctx)
}
