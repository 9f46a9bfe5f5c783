package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/venuepay/backend/internal/models"
)

// lockRetryBackoff is the pause before the single automatic retry after a
// lock timeout.
const lockRetryBackoff = 50 * time.Millisecond

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// withdrawalSortFields whitelists user-supplied sort columns.
var withdrawalSortFields = map[string]bool{
	"created_at":  true,
	"resolved_at": true,
	"amount":      true,
	"status":      true,
}

// WithdrawalService owns the withdrawal request state machine. Funds are
// reserved the moment a request is filed, so concurrent requests can never
// jointly overdraw an account and resolution is pure bookkeeping.
type WithdrawalService struct {
	db        *sql.DB
	ledger    *LedgerService
	payouts   *PayoutService
	banks     *BankService
	validator *ValidationHelper
}

func NewWithdrawalService(db *sql.DB, ledger *LedgerService, payouts *PayoutService, banks *BankService) *WithdrawalService {
	return &WithdrawalService{
		db:        db,
		ledger:    ledger,
		payouts:   payouts,
		banks:     banks,
		validator: NewValidationHelper(),
	}
}

// WithdrawalPayload is the request body for filing a withdrawal.
type WithdrawalPayload struct {
	Description string `json:"description" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	BankCode    string `json:"bankCode" validate:"omitempty,numeric"`
	BankAccount string `json:"bankAccount" validate:"omitempty,max=34"`
}

// ResolvePayload is the request body for resolving a withdrawal.
type ResolvePayload struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

// RequestWithdrawal reserves funds and files the request as one atomic unit.
// A failed reservation leaves the account unchanged and creates no row.
func (ws *WithdrawalService) RequestWithdrawal(ctx context.Context, accountID string, payload *WithdrawalPayload) (*models.WithdrawalRequest, error) {
	if strings.TrimSpace(payload.Description) == "" {
		return nil, ErrEmptyDescription
	}
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if payload.BankCode != "" && !ws.banks.IsSupported(payload.BankCode) {
		return nil, ErrUnsupportedBank
	}

	var created *models.WithdrawalRequest
	err := withLockRetry(func() error {
		var err error
		created, err = ws.requestWithdrawalOnce(ctx, accountID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WITHDRAWAL] Created request %s for account %s, amount %d", created.ID, accountID, created.Amount)
	return created, nil
}

func (ws *WithdrawalService) requestWithdrawalOnce(ctx context.Context, accountID string, payload *WithdrawalPayload) (*models.WithdrawalRequest, error) {
	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := ws.ledger.ReserveForWithdrawalTx(ctx, tx, accountID, payload.Amount); err != nil {
		return nil, err
	}

	wr := &models.WithdrawalRequest{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Description: payload.Description,
		Amount:      payload.Amount,
		BankCode:    payload.BankCode,
		BankAccount: payload.BankAccount,
		Status:      models.WithdrawalPending,
		CreatedAt:   time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (id, account_id, description, amount, bank_code, bank_account, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wr.ID, wr.AccountID, wr.Description, wr.Amount, wr.BankCode, wr.BankAccount, wr.Status, wr.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return wr, nil
}

// Resolve moves a PENDING request to its terminal state. Resolving a request
// twice fails with ErrAlreadyResolved and performs no further ledger
// mutation. On approval the payout instruction is queued after commit, so no
// I/O happens while the account row is locked.
func (ws *WithdrawalService) Resolve(ctx context.Context, requestID, status string) (*models.WithdrawalRequest, error) {
	if status != models.WithdrawalApproved && status != models.WithdrawalRejected {
		return nil, fmt.Errorf("invalid resolution status %q", status)
	}

	var resolved *models.WithdrawalRequest
	err := withLockRetry(func() error {
		var err error
		resolved, err = ws.resolveOnce(ctx, requestID, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	if resolved.Status == models.WithdrawalApproved {
		if err := ws.payouts.QueuePayout(ctx, resolved); err != nil {
			// The ledger is already settled; payout dispatch is re-driven
			// from the settlement queue, so log and keep the resolution.
			log.Printf("[WITHDRAWAL] Failed to queue payout for request %s: %v", resolved.ID, err)
		}
	}

	log.Printf("[WITHDRAWAL] Resolved request %s as %s", resolved.ID, resolved.Status)
	return resolved, nil
}

func (ws *WithdrawalService) resolveOnce(ctx context.Context, requestID, status string) (*models.WithdrawalRequest, error) {
	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wr, err := ws.lockRequest(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}

	if wr.Status != models.WithdrawalPending {
		return nil, ErrAlreadyResolved
	}

	now := time.Now().UTC()
	switch status {
	case models.WithdrawalApproved:
		if err := ws.ledger.SettleApprovedTx(ctx, tx, wr.AccountID, wr.Amount); err != nil {
			return nil, err
		}
		wr.PayoutReference = ws.payouts.NewPayoutReference()
	case models.WithdrawalRejected:
		if err := ws.ledger.ReleaseReservationTx(ctx, tx, wr.AccountID, wr.Amount); err != nil {
			return nil, err
		}
	}

	wr.Status = status
	wr.ResolvedAt = &now
	if _, err := tx.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status = $1, resolved_at = $2, payout_reference = $3
		WHERE id = $4`,
		wr.Status, now, wr.PayoutReference, wr.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return wr, nil
}

func (ws *WithdrawalService) lockRequest(ctx context.Context, tx *sql.Tx, requestID string) (*models.WithdrawalRequest, error) {
	var wr models.WithdrawalRequest
	var resolvedAt sql.NullTime
	err := tx.QueryRowContext(ctx, `
		SELECT id, account_id, description, amount, bank_code, bank_account, status, payout_reference, created_at, resolved_at
		FROM withdrawal_requests
		WHERE id = $1
		FOR UPDATE`, requestID).
		Scan(&wr.ID, &wr.AccountID, &wr.Description, &wr.Amount, &wr.BankCode, &wr.BankAccount,
			&wr.Status, &wr.PayoutReference, &wr.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if resolvedAt.Valid {
		wr.ResolvedAt = &resolvedAt.Time
	}
	return &wr, nil
}

// GetWithdrawal fetches one request without locking it.
func (ws *WithdrawalService) GetWithdrawal(ctx context.Context, requestID string) (*models.WithdrawalRequest, error) {
	var wr models.WithdrawalRequest
	var resolvedAt sql.NullTime
	err := ws.db.QueryRowContext(ctx, `
		SELECT id, account_id, description, amount, bank_code, bank_account, status, payout_reference, created_at, resolved_at
		FROM withdrawal_requests
		WHERE id = $1`, requestID).
		Scan(&wr.ID, &wr.AccountID, &wr.Description, &wr.Amount, &wr.BankCode, &wr.BankAccount,
			&wr.Status, &wr.PayoutReference, &wr.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if resolvedAt.Valid {
		wr.ResolvedAt = &resolvedAt.Time
	}
	return &wr, nil
}

// ListWithdrawals returns one page of requests matching the filter, used by
// both the owner's own history and the admin's global queue.
func (ws *WithdrawalService) ListWithdrawals(ctx context.Context, filter *models.WithdrawalFilter) (*models.WithdrawalPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	if !withdrawalSortFields[filter.SortField] {
		filter.SortField = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortDirection, "asc") {
		direction = "ASC"
	}

	var conditions []string
	var args []interface{}
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := ws.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM withdrawal_requests"+whereClause, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT id, account_id, description, amount, bank_code, bank_account, status, payout_reference, created_at, resolved_at FROM withdrawal_requests%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		whereClause, filter.SortField, direction, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := ws.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	withdrawals := []models.WithdrawalRequest{}
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
		withdrawals = append(withdrawals, wr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.WithdrawalPage{
		Withdrawals: withdrawals,
		Page:        filter.Page,
		PageSize:    filter.PageSize,
		Total:       total,
	}, nil
}

// withLockRetry runs fn and retries it exactly once, after a short backoff,
// when the account row lock could not be acquired.
func withLockRetry(fn func() error) error {
	err := fn()
	if errors.Is(err, ErrLockTimeout) {
		time.Sleep(lockRetryBackoff)
		err = fn()
	}
	return err
}

// CreateWithdrawal files a withdrawal request
// @Summary Request a withdrawal
// @Description Reserve funds from the available amount and file a PENDING withdrawal request
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param accountId path string true "Account ID"
// @Param withdrawal body WithdrawalPayload true "Withdrawal data"
// @Success 201 {object} models.WithdrawalRequest
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /accounts/{accountId}/withdrawals [post]
func (ws *WithdrawalService) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if !callerMayAccess(r, accountID) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	var payload WithdrawalPayload
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

	if err := ws.validator.ValidateStruct(&payload); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	wr, err := ws.RequestWithdrawal(r.Context(), accountID, &payload)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(wr)
}

// ResolveWithdrawal approves or rejects a pending request
// @Summary Resolve a withdrawal
// @Description Move a PENDING withdrawal request to APPROVED or REJECTED
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal request ID"
// @Param resolution body ResolvePayload true "Resolution"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /withdrawals/{id} [patch]
func (ws *WithdrawalService) ResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	var payload ResolvePayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := ws.validator.ValidateStruct(&payload); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	wr, err := ws.Resolve(r.Context(), requestID, payload.Status)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wr)
}

// ListWithdrawalsHandler lists withdrawal requests
// @Summary List withdrawals
// @Description Paged, filterable withdrawal listing; owners only see their own requests
// @Tags withdrawals
// @Produce json
// @Param accountId query string false "Filter by account ID"
// @Param status query string false "Filter by status (PENDING, APPROVED, REJECTED)"
// @Param page query int false "Page number (default 1)"
// @Param size query int false "Page size (default 20, max 100)"
// @Param sort query string false "Sort field (created_at, resolved_at, amount, status)"
// @Param dir query string false "Sort direction (asc, desc)"
// @Success 200 {object} models.WithdrawalPage
// @Router /withdrawals [get]
func (ws *WithdrawalService) ListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.WithdrawalFilter{
		AccountID:     q.Get("accountId"),
		Status:        q.Get("status"),
		SortField:     q.Get("sort"),
		SortDirection: q.Get("dir"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("size"))

	// Owners only ever see their own history.
	if callerRole(r) != models.RoleAdmin {
		filter.AccountID = callerAccountID(r)
	}

	page, err := ws.ListWithdrawals(r.Context(), filter)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

// GetWithdrawalHandler fetches one withdrawal request
// @Summary Get withdrawal by ID
// @Tags withdrawals
// @Produce json
// @Param id path string true "Withdrawal request ID"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Router /withdrawals/{id} [get]
func (ws *WithdrawalService) GetWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	wr, err := ws.GetWithdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}

	if !callerMayAccess(r, wr.AccountID) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wr)
}

// WithdrawalReceipt renders a QR receipt for an approved withdrawal
// @Summary Withdrawal receipt
// @Description QR code encoding the payout reference of an approved withdrawal
// @Tags withdrawals
// @Produce png
// @Param id path string true "Withdrawal request ID"
// @Success 200 {string} binary "PNG image"
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /withdrawals/{id}/receipt [get]
func (ws *WithdrawalService) WithdrawalReceipt(w http.ResponseWriter, r *http.Request) {
	wr, err := ws.GetWithdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}

	if !callerMayAccess(r, wr.AccountID) {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	if wr.Status != models.WithdrawalApproved {
		SendErrorResponse(w, "Receipt is only available for approved withdrawals", http.StatusConflict, nil)
		return
	}

	qr, err := qrcode.New(wr.PayoutReference, qrcode.Medium)
	if err != nil {
		SendErrorResponse(w, "Failed to render receipt", http.StatusInternalServerError, nil)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		SendErrorResponse(w, "Failed to render receipt", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func callerAccountID(r *http.Request) string {
	id, _ := r.Context().Value("accountID").(string)
	return id
}

func callerRole(r *http.Request) string {
	role, _ := r.Context().Value("role").(string)
	return role
}

// callerMayAccess allows the account's own principal and any admin.
func callerMayAccess(r *http.Request, accountID string) bool {
	return callerRole(r) == models.RoleAdmin || callerAccountID(r) == accountID
}
