package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piphub/backend/internal/coins"
	"github.com/piphub/backend/internal/config"
)

// BotEconomy keeps the coin economy visibly alive on quiet instances by
// issuing small randomized transactions for designated bot accounts. Bots go
// through the ordinary Execute path, so the fraud guard and idempotency
// apply to them like to anyone else.
type BotEconomy struct {
	ledger *CoinTransactionService
	cfg    *config.LedgerConfig
	logger zerolog.Logger
	rng    *rand.Rand
}

func NewBotEconomy(ledger *CoinTransactionService, cfg *config.LedgerConfig, logger zerolog.Logger) *BotEconomy {
	return &BotEconomy{
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Tick runs one simulation step for a random bot user.
func (b *BotEconomy) Tick(ctx context.Context) {
	if len(b.cfg.BotUserIDs) == 0 {
		return
	}
	userID := b.cfg.BotUserIDs[b.rng.Intn(len(b.cfg.BotUserIDs))]

	amount := b.rng.Int63n(b.cfg.BotMaxAmount) + 1
	trigger := coins.TriggerBotEarn
	if b.rng.Intn(2) == 1 {
		amount = -amount
		trigger = coins.TriggerBotSpend
	}

	result := b.ledger.Execute(ctx, coins.TransactionRequest{
		UserID:         userID,
		Amount:         amount,
		Trigger:        trigger,
		Channel:        coins.ChannelBot,
		Description:    fmt.Sprintf("Simulated economy activity (%+d)", amount),
		IdempotencyKey: "bot:" + uuid.NewString(),
	}, nil)

	// Bots spending past zero or tripping the fraud guard is expected noise.
	if !result.Success && result.Code == coins.CodeInternal {
		b.logger.Error().Str("user_id", userID).Str("error", result.Error).Msg("Bot transaction failed")
	}
}

// Run drives the simulation until ctx is cancelled.
func (b *BotEconomy) Run(ctx context.Context) {
	if !b.cfg.BotEnabled || len(b.cfg.BotUserIDs) == 0 {
		b.logger.Info().Msg("Bot economy disabled")
		return
	}

	ticker := time.NewTicker(b.cfg.BotInterval)
	defer ticker.Stop()

	b.logger.Info().Int("bots", len(b.cfg.BotUserIDs)).Dur("interval", b.cfg.BotInterval).
		Msg("Bot economy started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}
