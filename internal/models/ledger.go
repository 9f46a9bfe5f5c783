package models

import (
	"time"
)

// Account is the ledger record for one owner or admin principal.
type Account struct {
	AccountID        string    `json:"account_id" db:"account_id"`
	OwnerPrincipalID string    `json:"owner_principal_id" db:"owner_principal_id"`
	Role             string    `json:"role" db:"role"`       // OWNER or ADMIN
	Balance          int64     `json:"balance" db:"balance"` // in minor units
	AvailableAmount  int64     `json:"available_amount" db:"available_amount"`
	Version          int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// RevenueEntry records one account's revenue for one calendar day.
// At most one row exists per (account_id, day); same-day credits sum.
type RevenueEntry struct {
	AccountID string    `json:"account_id" db:"account_id"`
	Day       time.Time `json:"day" db:"day"` // date only, UTC
	Amount    int64     `json:"amount" db:"amount"`
}

// RevenuePoint is one day of an aggregated revenue series. Days without
// activity are emitted with Amount 0 so consumers render a fixed axis.
type RevenuePoint struct {
	Day    string `json:"day"` // YYYY-MM-DD
	Amount int64  `json:"amount"`
}

// RevenueSeries is the chart-ready result of a trailing-window aggregation.
type RevenueSeries struct {
	Series []RevenuePoint `json:"series"`
	Total  int64          `json:"total"`
}
