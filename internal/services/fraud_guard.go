package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/piphub/backend/internal/coins"
	"github.com/piphub/backend/internal/config"
)

// ErrFraudBlocked marks a transaction rejected by a fraud heuristic. The
// wrapped message is the human-readable reason surfaced to the caller.
var ErrFraudBlocked = errors.New("fraud blocked")

// FraudGuard runs the pre-commit heuristic checks against a user's recent
// transaction history. All checks fail OPEN: if the check itself cannot run,
// the transaction is allowed and the anomaly is logged for offline review.
// Blocking legitimate economy activity on an infrastructure hiccup costs more
// than the abuse window it closes.
type FraudGuard struct {
	db     *sql.DB
	cfg    *config.LedgerConfig
	logger zerolog.Logger
}

func NewFraudGuard(db *sql.DB, cfg *config.LedgerConfig, logger zerolog.Logger) *FraudGuard {
	return &FraudGuard{db: db, cfg: cfg, logger: logger}
}

// Check evaluates (userID, amount, trigger) against the configured limits.
// A non-nil error always wraps ErrFraudBlocked; infrastructure failures are
// never surfaced.
func (g *FraudGuard) Check(ctx context.Context, userID string, amount int64, trigger coins.Trigger) error {
	if amount < 0 {
		amount = -amount
	}
	if amount > g.cfg.MaxAmount && !trigger.Administrative() {
		return fmt.Errorf("%w: amount %d exceeds per-transaction ceiling %d", ErrFraudBlocked, amount, g.cfg.MaxAmount)
	}

	var recent int
	err := g.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coin_transactions
		WHERE user_id = $1 AND created_at > NOW() - $2::interval`,
		userID, g.cfg.RateLimitWindow.String(),
	).Scan(&recent)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("Fraud rate-limit check failed, allowing transaction")
		return nil
	}
	if recent >= g.cfg.RateLimitMax {
		return fmt.Errorf("%w: %d transactions in the last %s", ErrFraudBlocked, recent, g.cfg.RateLimitWindow)
	}

	var duplicate bool
	err = g.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM coin_transactions
			WHERE user_id = $1 AND trigger_code = $2 AND created_at > NOW() - $3::interval
		)`,
		userID, trigger, g.cfg.DuplicateWindow.String(),
	).Scan(&duplicate)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("Fraud duplicate check failed, allowing transaction")
		return nil
	}
	if duplicate {
		return fmt.Errorf("%w: trigger %q already fired within %s", ErrFraudBlocked, trigger, g.cfg.DuplicateWindow)
	}

	return nil
}
