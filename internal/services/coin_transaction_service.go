package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piphub/backend/internal/coins"
	"github.com/piphub/backend/internal/config"
	"github.com/piphub/backend/internal/models"
)

var (
	// ErrInsufficientBalance aborts a debit that would take a non-admin
	// channel balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrVersionConflict is the optimistic-lock failure. The caller retries
	// the whole Execute call, not just the write.
	ErrVersionConflict = errors.New("concurrent wallet modification")
	// ErrWalletFrozen rejects transactions against a non-active wallet.
	ErrWalletFrozen = errors.New("wallet is frozen")
)

// CoinTransactionService is the single entry point for every coin movement:
// it composes the idempotency check, taxonomy validation, fraud guard and the
// atomic wallet-plus-ledger write, then emits post-commit events. Concurrent
// transactions for the same user serialize on the wallet row lock; different
// users proceed fully in parallel. There is no in-process lock or queue.
type CoinTransactionService struct {
	db     *sql.DB
	fraud  *FraudGuard
	events *EventPublisher
	cfg    *config.LedgerConfig
	logger zerolog.Logger
}

func NewCoinTransactionService(db *sql.DB, fraud *FraudGuard, events *EventPublisher, cfg *config.LedgerConfig, logger zerolog.Logger) *CoinTransactionService {
	return &CoinTransactionService{
		db:     db,
		fraud:  fraud,
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txOutcome is what the atomic unit reports back on success.
type txOutcome struct {
	transactionID string
	newBalance    int64
}

// Execute runs one ledger transaction end to end.
//
// When externalTx is nil the service opens its own storage transaction and,
// after commit, publishes the balance-updated and admin-feed events itself.
// When the caller already holds a transaction it passes it in: the write then
// joins the caller's transaction and the events come back in
// Result.SideEffects for the caller to publish after its own commit. Either
// way no event is ever emitted for a transaction that did not durably commit.
//
// Failures are reported in-band; Execute never panics past the boundary.
func (s *CoinTransactionService) Execute(ctx context.Context, req coins.TransactionRequest, externalTx *sql.Tx) (res coins.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("user_id", req.UserID).Msg("Panic in coin transaction")
			res = coins.Result{Success: false, Code: coins.CodeInternal, Error: "internal error"}
		}
	}()

	// Idempotent replay short-circuits before any validation: the original
	// request already passed it.
	if req.IdempotencyKey != "" {
		var q querier = s.db
		if externalTx != nil {
			q = externalTx
		}
		if prior, ok := s.replay(ctx, q, req); ok {
			return prior
		}
	}

	if err := coins.ValidatePair(req.Trigger, req.Channel); err != nil {
		return coins.Result{Success: false, Code: coins.CodeValidation, Error: err.Error()}
	}
	if req.Amount == 0 {
		return coins.Result{Success: false, Code: coins.CodeValidation, Error: "amount must be non-zero"}
	}

	if err := s.fraud.Check(ctx, req.UserID, req.Amount, req.Trigger); err != nil {
		s.logger.Info().Str("user_id", req.UserID).Str("trigger", string(req.Trigger)).
			Int64("amount", req.Amount).Msg("Transaction blocked by fraud guard")
		return coins.Result{Success: false, Code: coins.CodeFraudBlocked, Error: err.Error()}
	}

	if externalTx != nil {
		outcome, err := s.apply(ctx, externalTx, req)
		if err != nil {
			return s.failure(req, err)
		}
		return coins.Result{
			Success:       true,
			TransactionID: outcome.transactionID,
			NewBalance:    outcome.newBalance,
			SideEffects:   &coins.SideEffects{Events: buildEvents(req, outcome)},
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to begin transaction")
		return coins.Result{Success: false, Code: coins.CodeInternal, Error: "failed to begin transaction"}
	}
	defer tx.Rollback()

	outcome, err := s.apply(ctx, tx, req)
	if err != nil {
		return s.failure(req, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to commit transaction")
		return coins.Result{Success: false, Code: coins.CodeInternal, Error: "failed to commit transaction"}
	}

	for _, ev := range buildEvents(req, outcome) {
		s.events.Publish(ctx, ev)
	}

	s.logger.Info().Str("user_id", req.UserID).Str("transaction_id", outcome.transactionID).
		Int64("amount", req.Amount).Int64("new_balance", outcome.newBalance).
		Str("trigger", string(req.Trigger)).Msg("Coin transaction committed")

	return coins.Result{
		Success:       true,
		TransactionID: outcome.transactionID,
		NewBalance:    outcome.newBalance,
	}
}

// replay looks up a previously committed transaction by idempotency key and,
// if found, returns its id with the wallet's current balance. This makes
// Execute safe to retry after a network failure.
func (s *CoinTransactionService) replay(ctx context.Context, q querier, req coins.TransactionRequest) (coins.Result, bool) {
	var txID string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM coin_transactions WHERE idempotency_key = $1`,
		req.IdempotencyKey,
	).Scan(&txID)
	if err == sql.ErrNoRows {
		return coins.Result{}, false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Idempotency lookup failed")
		return coins.Result{Success: false, Code: coins.CodeInternal, Error: "idempotency lookup failed"}, true
	}

	var balance int64
	if err := q.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1`,
		req.UserID,
	).Scan(&balance); err != nil {
		s.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("Balance read failed on idempotent replay")
	}

	return coins.Result{
		Success:       true,
		Duplicate:     true,
		TransactionID: txID,
		NewBalance:    balance,
	}, true
}

// apply is the atomic unit: wallet row lock, balance mutation under the
// optimistic version check, ledger write, profile mirror and audit entries,
// all inside the supplied storage transaction.
func (s *CoinTransactionService) apply(ctx context.Context, tx *sql.Tx, req coins.TransactionRequest) (*txOutcome, error) {
	var w models.Wallet
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance, version, status FROM wallets
		WHERE user_id = $1
		FOR UPDATE`,
		req.UserID,
	).Scan(&w.ID, &w.Balance, &w.Version, &w.Status)
	if err == sql.ErrNoRows {
		// Lazy initialization: a transaction may arrive before wallet
		// provisioning.
		w = models.Wallet{ID: uuid.NewString(), UserID: req.UserID, Status: models.WalletActive}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (id, user_id, balance, available_balance, status, version, updated_at)
			VALUES ($1, $2, 0, 0, $3, 0, NOW())`,
			w.ID, req.UserID, models.WalletActive,
		); err != nil {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	if w.Status != models.WalletActive {
		return nil, ErrWalletFrozen
	}

	newBalance := w.Balance + req.Amount
	if newBalance < 0 && req.Channel != coins.ChannelAdmin {
		return nil, ErrInsufficientBalance
	}

	txType := req.Type
	if txType == "" {
		if req.Amount >= 0 {
			txType = coins.TypeEarn
		} else {
			txType = coins.TypeSpend
		}
	}

	txID := uuid.NewString()
	var idempotencyKey any
	if req.IdempotencyKey != "" {
		idempotencyKey = req.IdempotencyKey
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO coin_transactions
		(id, user_id, amount, type, trigger_code, channel, description, metadata, idempotency_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		txID, req.UserID, req.Amount, txType, req.Trigger, req.Channel,
		req.Description, []byte(req.Metadata), idempotencyKey, models.TxCompleted,
	); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $1, available_balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		newBalance, w.ID, w.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}
	if affected == 0 {
		return nil, ErrVersionConflict
	}

	// Mirror the delta onto the profile's denormalized total. The wallet row
	// stays the source of truth; the mirror only exists for the read path and
	// must move in the same transaction to avoid divergence.
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET total_coins = total_coins + $1, updated_at = NOW() WHERE id = $2`,
		req.Amount, req.UserID,
	); err != nil {
		return nil, fmt.Errorf("mirror balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(transaction_id, user_id, amount, channel, description, metadata, balance_after, closed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		txID, req.UserID, req.Amount, req.Channel, req.Description,
		[]byte(req.Metadata), newBalance,
	); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	s.writeAuditLog(ctx, tx, req, txID, w.Balance, newBalance)

	return &txOutcome{transactionID: txID, newBalance: newBalance}, nil
}

// writeAuditLog records the compliance trail for administrative or
// high-magnitude transactions. The insert runs under a savepoint so a failure
// cannot poison the surrounding transaction: audit is best-effort and must
// never roll back a legitimate economic transaction.
func (s *CoinTransactionService) writeAuditLog(ctx context.Context, tx *sql.Tx, req coins.TransactionRequest, txID string, before, after int64) {
	magnitude := req.Amount
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if req.Channel != coins.ChannelAdmin && magnitude <= s.cfg.AuditThreshold {
		return
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT audit_log`); err != nil {
		s.logger.Error().Err(err).Str("transaction_id", txID).Msg("Audit savepoint failed, entry skipped")
		return
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs
		(transaction_id, user_id, actor_id, amount, balance_before, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		txID, req.UserID, req.ActorID, req.Amount, before, after, []byte(req.Metadata),
	); err != nil {
		s.logger.Error().Err(err).Str("transaction_id", txID).Msg("Audit log write failed")
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT audit_log`); rbErr != nil {
			s.logger.Error().Err(rbErr).Str("transaction_id", txID).Msg("Audit savepoint rollback failed")
		}
		return
	}
	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT audit_log`); err != nil {
		s.logger.Error().Err(err).Str("transaction_id", txID).Msg("Audit savepoint release failed")
	}
}

func (s *CoinTransactionService) failure(req coins.TransactionRequest, err error) coins.Result {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return coins.Result{Success: false, Code: coins.CodeInsufficientBalance, Error: err.Error()}
	case errors.Is(err, ErrVersionConflict):
		return coins.Result{Success: false, Code: coins.CodeConflict, Error: err.Error()}
	case errors.Is(err, ErrWalletFrozen):
		return coins.Result{Success: false, Code: coins.CodeValidation, Error: err.Error()}
	default:
		s.logger.Error().Err(err).Str("user_id", req.UserID).Str("trigger", string(req.Trigger)).
			Msg("Coin transaction failed")
		return coins.Result{Success: false, Code: coins.CodeInternal, Error: err.Error()}
	}
}

func buildEvents(req coins.TransactionRequest, outcome *txOutcome) []coins.Event {
	base := coins.Event{
		UserID:        req.UserID,
		TransactionID: outcome.transactionID,
		Amount:        req.Amount,
		NewBalance:    outcome.newBalance,
		Trigger:       req.Trigger,
		Channel:       req.Channel,
	}
	balance := base
	balance.Stream = BalanceStream(req.UserID)
	admin := base
	admin.Stream = AdminFeedStream
	return []coins.Event{balance, admin}
}
