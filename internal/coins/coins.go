// Package coins defines the request/result contract of the coin ledger and
// the closed trigger/channel taxonomies shared with its consumers.
package coins

import "encoding/json"

// TransactionType classifies a ledger transaction. It is normally derived
// from the sign of the amount; recharge flows set it explicitly.
type TransactionType string

const (
	TypeEarn     TransactionType = "earn"
	TypeSpend    TransactionType = "spend"
	TypeRecharge TransactionType = "recharge"
)

// ErrorCode identifies the failure class of a rejected transaction.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION"
	CodeFraudBlocked        ErrorCode = "FRAUD_BLOCKED"
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeConflict            ErrorCode = "CONCURRENT_MODIFICATION"
	CodeInternal            ErrorCode = "INTERNAL"
)

// TransactionRequest is the input to CoinTransactionService.Execute.
// Amount is signed: positive credits, negative debits.
type TransactionRequest struct {
	UserID         string          `json:"userId" validate:"required"`
	Amount         int64           `json:"amount" validate:"required"`
	Trigger        Trigger         `json:"trigger" validate:"required"`
	Channel        Channel         `json:"channel" validate:"required"`
	Description    string          `json:"description" validate:"required,max=500"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
	Type           TransactionType `json:"type,omitempty" validate:"omitempty,oneof=earn spend recharge"`
	ActorID        string          `json:"actorId,omitempty"`
}

// Event is the payload pushed to the real-time layer after a commit.
type Event struct {
	Stream        string  `json:"-"`
	UserID        string  `json:"userId"`
	TransactionID string  `json:"transactionId"`
	Amount        int64   `json:"delta"`
	NewBalance    int64   `json:"newBalance"`
	Trigger       Trigger `json:"trigger"`
	Channel       Channel `json:"channel"`
}

// SideEffects carries the post-commit events of a transaction executed
// inside a caller-owned storage transaction. The caller publishes them once
// its own outer transaction commits; nothing is emitted for an uncommitted
// transaction.
type SideEffects struct {
	Events []Event `json:"events"`
}

// Result is the outcome of an Execute call. Failures are reported in-band:
// Success false plus Code/Error, never a panic past the service boundary.
// Duplicate true marks an idempotent replay, which callers treat as success.
type Result struct {
	Success       bool         `json:"success"`
	Duplicate     bool         `json:"duplicate,omitempty"`
	TransactionID string       `json:"transactionId,omitempty"`
	NewBalance    int64        `json:"newBalance"`
	Code          ErrorCode    `json:"code,omitempty"`
	Error         string       `json:"error,omitempty"`
	SideEffects   *SideEffects `json:"-"`
}
