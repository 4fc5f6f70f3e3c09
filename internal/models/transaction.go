package models

import (
	"encoding/json"
	"time"

	"github.com/piphub/backend/internal/coins"
)

// Transaction statuses. Records are immutable once written; corrections
// happen via new offsetting transactions, never edits.
const (
	TxCompleted = "COMPLETED"
)

// CoinTransaction is one immutable row of the coin ledger.
type CoinTransaction struct {
	ID             string                `json:"id" db:"id"`
	UserID         string                `json:"user_id" db:"user_id"`
	Amount         int64                 `json:"amount" db:"amount"`
	Type           coins.TransactionType `json:"type" db:"type"`
	Trigger        coins.Trigger         `json:"trigger" db:"trigger_code"`
	Channel        coins.Channel         `json:"channel" db:"channel"`
	Description    string                `json:"description" db:"description"`
	Metadata       json.RawMessage       `json:"metadata,omitempty" db:"metadata"`
	IdempotencyKey *string               `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Status         string                `json:"status" db:"status"`
	CreatedAt      time.Time             `json:"created_at" db:"created_at"`
}

// LedgerEntry is the secondary audit-ledger record written alongside every
// transaction. It denormalizes channel/description/metadata and carries the
// post-transaction balance. ClosedAt is set at creation: each entry is a
// single atomic event, not a multi-step workflow.
type LedgerEntry struct {
	ID            int             `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Amount        int64           `json:"amount" db:"amount"`
	Channel       coins.Channel   `json:"channel" db:"channel"`
	Description   string          `json:"description" db:"description"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	BalanceAfter  int64           `json:"balance_after" db:"balance_after"`
	ClosedAt      time.Time       `json:"closed_at" db:"closed_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// AuditLog is the compliance trail, written only for administrative-channel
// or high-magnitude transactions. Best-effort: a failed insert never rolls
// back the economic transaction it describes.
type AuditLog struct {
	ID            int             `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	UserID        string          `json:"user_id" db:"user_id"`
	ActorID       string          `json:"actor_id" db:"actor_id"`
	Amount        int64           `json:"amount" db:"amount"`
	BalanceBefore int64           `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64           `json:"balance_after" db:"balance_after"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// TreasurySnapshot is a periodic aggregate of the coin economy.
type TreasurySnapshot struct {
	ID               int       `json:"id" db:"id"`
	TotalCoins       int64     `json:"total_coins" db:"total_coins"`
	WalletCount      int64     `json:"wallet_count" db:"wallet_count"`
	EarnedLast24h    int64     `json:"earned_last_24h" db:"earned_last_24h"`
	SpentLast24h     int64     `json:"spent_last_24h" db:"spent_last_24h"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
