package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recentWithdrawalsQuery = "SELECT id, account_id, description, amount, bank_code, bank_account, status, payout_reference, created_at, resolved_at FROM withdrawal_requests WHERE account_id = \\$1 ORDER BY created_at DESC LIMIT \\$2"

func accountServiceForTest(t *testing.T) (*AccountService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewAccountService(db, NewLedgerService(db)), mock, func() { db.Close() }
}

func TestAccountService_GetOwnerSummary(t *testing.T) {
	service, mock, closeDB := accountServiceForTest(t)
	defer closeDB()
	ctx := context.Background()

	t.Run("summary carries balances and recent requests", func(t *testing.T) {
		expectAccountExists(mock, "acc1")
		mock.ExpectQuery(recentWithdrawalsQuery).
			WithArgs("acc1", recentWithdrawalLimit).
			WillReturnRows(withdrawalRow("wr1", "acc1", 200000, "PENDING").
				AddRow("wr2", "acc1", "court hire payout", int64(100000), "014", "1234567890", "APPROVED", "PAY-REF", time.Now(), time.Now()))

		summary, err := service.GetOwnerSummary(ctx, "acc1")
		require.NoError(t, err)
		assert.Equal(t, "acc1", summary.AccountID)
		assert.Equal(t, int64(500000), summary.Balance)
		assert.Equal(t, int64(500000), summary.AvailableAmount)
		require.Len(t, summary.RecentWithdrawals, 2)
		assert.Equal(t, "wr1", summary.RecentWithdrawals[0].ID)
		assert.Nil(t, summary.RecentWithdrawals[0].ResolvedAt)
		assert.NotNil(t, summary.RecentWithdrawals[1].ResolvedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no withdrawal history yields an empty slice", func(t *testing.T) {
		expectAccountExists(mock, "acc1")
		mock.ExpectQuery(recentWithdrawalsQuery).
			WithArgs("acc1", recentWithdrawalLimit).
			WillReturnRows(sqlmock.NewRows(withdrawalColumns()))

		summary, err := service.GetOwnerSummary(ctx, "acc1")
		require.NoError(t, err)
		assert.NotNil(t, summary.RecentWithdrawals)
		assert.Len(t, summary.RecentWithdrawals, 0)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectQuery(getAccountQuery).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

		_, err := service.GetOwnerSummary(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAccountService_GetAdminSummary(t *testing.T) {
	service, mock, closeDB := accountServiceForTest(t)
	defer closeDB()
	ctx := context.Background()

	t.Run("aggregates owner accounts and withdrawal statuses", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_id, balance, available_amount FROM accounts WHERE role = \\$1 ORDER BY balance DESC").
			WithArgs("OWNER").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "available_amount"}).
				AddRow("acc1", int64(700000), int64(500000)).
				AddRow("acc2", int64(300000), int64(300000)))
		mock.ExpectQuery("SELECT status, COUNT\\(\\*\\), COALESCE\\(SUM\\(amount\\), 0\\) FROM withdrawal_requests GROUP BY status").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count", "sum"}).
				AddRow("PENDING", 3, int64(450000)).
				AddRow("APPROVED", 1, int64(200000)))

		summary, err := service.GetAdminSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), summary.AccountCount)
		assert.Equal(t, int64(1000000), summary.BalanceTotal)
		assert.Equal(t, int64(800000), summary.AvailableTotal)
		require.Len(t, summary.PerAccountTotals, 2)
		assert.Equal(t, "acc1", summary.PerAccountTotals[0].AccountID)

		assert.Equal(t, int64(3), summary.WithdrawalBreakdown["PENDING"].Count)
		assert.Equal(t, int64(450000), summary.WithdrawalBreakdown["PENDING"].AmountSum)
		assert.Equal(t, int64(200000), summary.WithdrawalBreakdown["APPROVED"].AmountSum)

		// Statuses with no rows are still present, zeroed.
		rejected, ok := summary.WithdrawalBreakdown["REJECTED"]
		require.True(t, ok)
		assert.Equal(t, int64(0), rejected.Count)
		assert.Equal(t, int64(0), rejected.AmountSum)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty platform", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_id, balance, available_amount FROM accounts").
			WithArgs("OWNER").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "available_amount"}))
		mock.ExpectQuery("SELECT status, COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count", "sum"}))

		summary, err := service.GetAdminSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), summary.AccountCount)
		assert.NotNil(t, summary.PerAccountTotals)
		assert.Len(t, summary.WithdrawalBreakdown, 3)
	})
}

func TestAccountService_Handlers(t *testing.T) {
	service, mock, closeDB := accountServiceForTest(t)
	defer closeDB()

	newRequest := func(target, accountID, role string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("accountId", "acc1")
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		return asCaller(r, accountID, role)
	}

	t.Run("owner reads own account", func(t *testing.T) {
		expectAccountExists(mock, "acc1")

		w := httptest.NewRecorder()
		service.GetAccountHandler(w, newRequest("/api/v1/accounts/acc1", "acc1", "OWNER"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"account_id":"acc1"`)
		assert.NotContains(t, w.Body.String(), "version")
	})

	t.Run("owner cannot read a foreign summary", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.GetOwnerSummaryHandler(w, newRequest("/api/v1/accounts/acc1/summary", "acc9", "OWNER"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing account maps to 404", func(t *testing.T) {
		mock.ExpectQuery(getAccountQuery).
			WithArgs("acc1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

		w := httptest.NewRecorder()
		service.GetAccountHandler(w, newRequest("/api/v1/accounts/acc1", "acc1", "OWNER"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
