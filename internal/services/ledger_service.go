package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/venuepay/backend/internal/models"
)

// pqLockNotAvailable is the Postgres error code raised by FOR UPDATE NOWAIT
// when another transaction holds the row lock.
const pqLockNotAvailable = "55P03"

// LedgerService is the only writer of account balances. Every mutation locks
// the account row for the duration of one database transaction, so all
// mutations for a given account are serialized while cross-account
// operations proceed in parallel.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// GetAccount returns the account projection without locking it.
func (s *LedgerService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, owner_principal_id, role, balance, available_amount, version, created_at, updated_at
		FROM accounts
		WHERE account_id = $1`, accountID).
		Scan(&a.AccountID, &a.OwnerPrincipalID, &a.Role, &a.Balance, &a.AvailableAmount, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreditRevenue posts one booking settlement: both balance and the available
// amount grow by amount, and the revenue entry for day is upserted
// additively so concurrent same-day credits sum instead of overwriting.
func (s *LedgerService) CreditRevenue(ctx context.Context, accountID string, day time.Time, amount int64) (*models.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	account.Balance += amount
	account.AvailableAmount += amount
	if err := s.updateAccountBalances(ctx, tx, account); err != nil {
		return nil, err
	}

	entryDay := day.UTC().Truncate(24 * time.Hour)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revenue_entries (account_id, day, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, day) DO UPDATE
		SET amount = revenue_entries.amount + EXCLUDED.amount`,
		accountID, entryDay, amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Credited %d to account %s for %s", amount, accountID, entryDay.Format("2006-01-02"))
	return account, nil
}

// ReserveForWithdrawal earmarks amount against the account's available
// amount. Balance is untouched; the funds only leave balance on settlement.
func (s *LedgerService) ReserveForWithdrawal(ctx context.Context, accountID string, amount int64) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := s.ReserveForWithdrawalTx(ctx, tx, accountID, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return account, nil
}

// ReserveForWithdrawalTx is the reservation step running inside the caller's
// transaction, so a withdrawal request row and its reservation commit as one
// atomic unit.
func (s *LedgerService) ReserveForWithdrawalTx(ctx context.Context, tx *sql.Tx, accountID string, amount int64) (*models.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	if account.AvailableAmount < amount {
		return nil, ErrInsufficientFunds
	}

	account.AvailableAmount -= amount
	if err := s.updateAccountBalances(ctx, tx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// SettleApprovedTx removes previously reserved funds from balance. The
// available amount was already decremented at reservation time.
func (s *LedgerService) SettleApprovedTx(ctx context.Context, tx *sql.Tx, accountID string, amount int64) error {
	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}

	if account.Balance < amount {
		return fmt.Errorf("ledger inconsistency: settling %d exceeds balance %d for account %s", amount, account.Balance, accountID)
	}

	account.Balance -= amount
	return s.updateAccountBalances(ctx, tx, account)
}

// ReleaseReservationTx returns reserved funds to the available amount after
// a rejection. Balance is untouched since it was never decremented.
func (s *LedgerService) ReleaseReservationTx(ctx context.Context, tx *sql.Tx, accountID string, amount int64) error {
	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}

	account.AvailableAmount += amount
	return s.updateAccountBalances(ctx, tx, account)
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (*models.Account, error) {
	var a models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT account_id, balance, available_amount, version, updated_at
		FROM accounts
		WHERE account_id = $1
		FOR UPDATE NOWAIT`, accountID).
		Scan(&a.AccountID, &a.Balance, &a.AvailableAmount, &a.Version, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable {
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return &a, nil
}

func (s *LedgerService) updateAccountBalances(ctx context.Context, tx *sql.Tx, account *models.Account) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, available_amount = $2, version = version + 1, updated_at = $3
		WHERE account_id = $4 AND version = $5`,
		account.Balance, account.AvailableAmount, time.Now(), account.AccountID, account.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s", account.AccountID)
	}

	account.Version++
	return nil
}
