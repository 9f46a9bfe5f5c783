package models

import (
	"time"
)

const (
	WithdrawalPending  = "PENDING"
	WithdrawalApproved = "APPROVED"
	WithdrawalRejected = "REJECTED"
)

const (
	RoleOwner = "OWNER"
	RoleAdmin = "ADMIN"
)

// WithdrawalRequest is an owner's request to pay out part of the available
// amount. Amount and destination are fixed at creation; status moves
// PENDING -> APPROVED or PENDING -> REJECTED exactly once.
type WithdrawalRequest struct {
	ID              string     `json:"id" db:"id"`
	AccountID       string     `json:"account_id" db:"account_id"`
	Description     string     `json:"description" db:"description"`
	Amount          int64      `json:"amount" db:"amount"`
	BankCode        string     `json:"bank_code,omitempty" db:"bank_code"`
	BankAccount     string     `json:"bank_account,omitempty" db:"bank_account"`
	Status          string     `json:"status" db:"status"`
	PayoutReference string     `json:"payout_reference,omitempty" db:"payout_reference"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at" db:"resolved_at"`
}

// WithdrawalFilter narrows and pages a withdrawal listing.
type WithdrawalFilter struct {
	AccountID     string
	Status        string
	Page          int
	PageSize      int
	SortField     string
	SortDirection string
}

// WithdrawalPage is one page of a filtered listing.
type WithdrawalPage struct {
	Withdrawals []WithdrawalRequest `json:"withdrawals"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	Total       int64               `json:"total"`
}

// StatusBreakdown aggregates withdrawal requests in one status.
type StatusBreakdown struct {
	Count     int64 `json:"count"`
	AmountSum int64 `json:"amount_sum"`
}

// AdminSummary is the admin console's aggregate view, computed on read.
type AdminSummary struct {
	AccountCount         int64                      `json:"account_count"`
	BalanceTotal         int64                      `json:"balance_total"`
	AvailableTotal       int64                      `json:"available_total"`
	PerAccountTotals     []AccountTotal             `json:"per_account_totals"`
	WithdrawalBreakdown  map[string]StatusBreakdown `json:"withdrawal_status_breakdown"`
}

// AccountTotal is one owner account's contribution to the admin summary.
type AccountTotal struct {
	AccountID       string `json:"account_id"`
	Balance         int64  `json:"balance"`
	AvailableAmount int64  `json:"available_amount"`
}

// OwnerSummary is the owner dashboard's headline view.
type OwnerSummary struct {
	AccountID         string              `json:"account_id"`
	Balance           int64               `json:"balance"`
	AvailableAmount   int64               `json:"available_amount"`
	RecentWithdrawals []WithdrawalRequest `json:"recent_withdrawals"`
}
