package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/piphub/backend/internal/coins"
	"github.com/piphub/backend/internal/middleware"
	"github.com/piphub/backend/internal/models"
)

// WalletService exposes the coin ledger over HTTP: balance enquiry, history
// and transaction execution for the authenticated user, plus the admin
// adjustment endpoint. It is a thin consumer of CoinTransactionService.
type WalletService struct {
	db        *sql.DB
	ledger    *CoinTransactionService
	validator *ValidationHelper
	logger    zerolog.Logger
}

func NewWalletService(db *sql.DB, ledger *CoinTransactionService, logger zerolog.Logger) *WalletService {
	return &WalletService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
		logger:    logger,
	}
}

// GetWallet returns the authenticated user's wallet. A user who has never
// transacted gets a zero-balance view; the row itself is created lazily on
// the first transaction.
func (ws *WalletService) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var wallet models.Wallet
	err := ws.db.QueryRowContext(r.Context(), `
		SELECT id, user_id, balance, available_balance, status, version, updated_at
		FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.AvailableBalance,
		&wallet.Status, &wallet.Version, &wallet.UpdatedAt)
	if err == sql.ErrNoRows {
		wallet = models.Wallet{UserID: userID, Status: models.WalletActive, UpdatedAt: time.Now()}
	} else if err != nil {
		ws.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch wallet")
		SendErrorResponse(w, "Failed to fetch wallet", http.StatusInternalServerError, nil)
		return
	}

	RespondJSON(w, http.StatusOK, wallet)
}

// ListTransactions returns the authenticated user's recent ledger history.
func (ws *WalletService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Limit int `validate:"omitempty,min=1,max=100"`
	}
	req.Limit = 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transactions, err := ws.fetchTransactions(r, userID, req.Limit)
	if err != nil {
		ws.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch transactions")
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// CreateTransaction executes a ledger transaction for the authenticated user.
// The user id always comes from the auth context, never the body.
func (ws *WalletService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req coins.TransactionRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	req.UserID = userID
	req.ActorID = userID

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result := ws.ledger.Execute(r.Context(), req, nil)
	RespondJSON(w, statusFor(result), result)
}

// AdminAdjust credits or debits any user's wallet on the admin channel.
// Admin-channel transactions may take a balance negative; that is the
// administrative override the ledger reserves for corrections.
func (ws *WalletService) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if role, _ := middleware.UserRole(r.Context()); role != "admin" {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	var req coins.TransactionRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	req.ActorID = actorID
	if req.Channel == "" {
		req.Channel = coins.ChannelAdmin
	}

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result := ws.ledger.Execute(r.Context(), req, nil)
	RespondJSON(w, statusFor(result), result)
}

func (ws *WalletService) fetchTransactions(r *http.Request, userID string, limit int) ([]models.CoinTransaction, error) {
	rows, err := ws.db.QueryContext(r.Context(), `
		SELECT id, user_id, amount, type, trigger_code, channel, description,
		       COALESCE(metadata, 'null'), idempotency_key, status, created_at
		FROM coin_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.CoinTransaction{}
	for rows.Next() {
		var tx models.CoinTransaction
		var metadata []byte
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.Trigger, &tx.Channel,
			&tx.Description, &metadata, &tx.IdempotencyKey, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Metadata = json.RawMessage(metadata)
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// decodeStrict reads a single JSON object from the body, rejecting unknown
// fields and trailing content.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// statusFor maps a ledger result to an HTTP status. Duplicate replays are a
// non-error success so retried client requests stay idempotent.
func statusFor(result coins.Result) int {
	if result.Success {
		if result.Duplicate {
			return http.StatusOK
		}
		return http.StatusCreated
	}
	switch result.Code {
	case coins.CodeValidation:
		return http.StatusBadRequest
	case coins.CodeFraudBlocked:
		return http.StatusTooManyRequests
	case coins.CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case coins.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
