package models

import "time"

// User holds the profile fields the coin economy touches. TotalCoins mirrors
// the wallet balance for cheap reads; the wallet row is the source of truth
// and the mirror is only ever updated inside the same storage transaction.
type User struct {
	ID         string    `json:"id" db:"id"`
	Username   string    `json:"username" db:"username"`
	Email      string    `json:"email" db:"email"`
	Role       string    `json:"role" db:"role"`
	TotalCoins int64     `json:"total_coins" db:"total_coins"`
	IsBot      bool      `json:"is_bot" db:"is_bot"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
