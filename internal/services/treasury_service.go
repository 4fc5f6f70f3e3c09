package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TreasuryService periodically snapshots the coin economy: total coins in
// circulation, wallet count and the trailing 24 h earn/spend volumes. The
// snapshots feed the admin dashboard and offline fraud review.
type TreasuryService struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTreasuryService(db *sql.DB, logger zerolog.Logger) *TreasuryService {
	return &TreasuryService{db: db, logger: logger}
}

// Snapshot aggregates the current state into a treasury_snapshots row.
// Reads are not serialized against writers: the snapshot is a statistical
// view, not an accounting source of truth.
func (s *TreasuryService) Snapshot(ctx context.Context) error {
	var totalCoins, walletCount int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0), COUNT(*) FROM wallets`,
	).Scan(&totalCoins, &walletCount)
	if err != nil {
		return fmt.Errorf("aggregate wallets: %w", err)
	}

	var earned, spent int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0)
		FROM coin_transactions
		WHERE created_at > NOW() - INTERVAL '24 hours'`,
	).Scan(&earned, &spent)
	if err != nil {
		return fmt.Errorf("aggregate transactions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO treasury_snapshots (total_coins, wallet_count, earned_last_24h, spent_last_24h, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		totalCoins, walletCount, earned, spent,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	s.logger.Info().Int64("total_coins", totalCoins).Int64("wallet_count", walletCount).
		Int64("earned_24h", earned).Int64("spent_24h", spent).Msg("Treasury snapshot written")
	return nil
}

// Run takes snapshots on the given interval until ctx is cancelled.
func (s *TreasuryService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Treasury snapshot failed")
			}
		}
	}
}
