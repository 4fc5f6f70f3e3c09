package models

import "time"

// Wallet statuses.
const (
	WalletActive = "ACTIVE"
	WalletFrozen = "FROZEN"
)

// Wallet is the per-user balance record and the source of truth for coin
// balances. Version backs the optimistic concurrency check: it increments
// exactly once per successful mutation. Balance and AvailableBalance stay
// equal (no holds are modeled).
type Wallet struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	Balance          int64     `json:"balance" db:"balance"`
	AvailableBalance int64     `json:"available_balance" db:"available_balance"`
	Status           string    `json:"status" db:"status"`
	Version          int       `json:"version" db:"version"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
