package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/piphub/backend/internal/coins"
	"github.com/piphub/backend/internal/middleware"
)

const rechargeQRTTL = 5 * time.Minute

// rechargeOrder is the one-time payload behind a recharge QR code.
type rechargeOrder struct {
	UserID    string `json:"userId"`
	Coins     int64  `json:"coins"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// RechargeService handles the coin top-up flow: a QR code encodes a pending
// recharge order held in Redis with a TTL; confirming it (after the payment
// provider callback) runs a recharge-typed ledger transaction. The nonce
// doubles as the idempotency key, so a replayed confirmation cannot credit
// the wallet twice.
type RechargeService struct {
	redis     *redis.Client
	ledger    *CoinTransactionService
	validator *ValidationHelper
	logger    zerolog.Logger
}

func NewRechargeService(rdb *redis.Client, ledger *CoinTransactionService, logger zerolog.Logger) *RechargeService {
	return &RechargeService{
		redis:     rdb,
		ledger:    ledger,
		validator: NewValidationHelper(),
		logger:    logger,
	}
}

// GenerateQRCode creates a recharge order for the user and returns the order
// code plus a base64 PNG of its QR rendering.
func (s *RechargeService) GenerateQRCode(ctx context.Context, userID string, amount int64) (string, string, error) {
	if s.redis == nil {
		return "", "", fmt.Errorf("recharge unavailable: redis not configured")
	}

	order := rechargeOrder{
		UserID:    userID,
		Coins:     amount,
		Nonce:     generateNonce(),
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(payload)
	key := fmt.Sprintf("recharge:qr:%s", code)
	if err := s.redis.Set(ctx, key, payload, rechargeQRTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ConfirmRecharge consumes a recharge order and credits the wallet through
// the ordinary ledger path. The order is deleted before crediting; the
// idempotency key covers the gap if the delete succeeds but the process dies
// mid-credit and the caller retries with the same code.
func (s *RechargeService) ConfirmRecharge(ctx context.Context, code string) coins.Result {
	if s.redis == nil {
		return coins.Result{Success: false, Code: coins.CodeInternal, Error: "recharge unavailable: redis not configured"}
	}

	key := fmt.Sprintf("recharge:qr:%s", code)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return coins.Result{Success: false, Code: coins.CodeValidation, Error: "invalid or expired recharge code"}
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read recharge order")
		return coins.Result{Success: false, Code: coins.CodeInternal, Error: "failed to read recharge order"}
	}

	var order rechargeOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return coins.Result{Success: false, Code: coins.CodeValidation, Error: "malformed recharge order"}
	}

	s.redis.Del(ctx, key)

	return s.ledger.Execute(ctx, coins.TransactionRequest{
		UserID:         order.UserID,
		Amount:         order.Coins,
		Trigger:        coins.TriggerPackagePurchase,
		Channel:        coins.ChannelRecharge,
		Description:    fmt.Sprintf("Coin recharge of %d", order.Coins),
		IdempotencyKey: "recharge:" + order.Nonce,
		Type:           coins.TypeRecharge,
	}, nil)
}

// GenerateQR is the HTTP surface of GenerateQRCode.
func (s *RechargeService) GenerateQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0,max=100000"`
	}
	if !decodeStrict(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	code, image, err := s.GenerateQRCode(r.Context(), userID, req.Amount)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to generate recharge QR")
		SendErrorResponse(w, "Failed to generate recharge code", http.StatusInternalServerError, nil)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"code":      code,
		"qrImage":   image,
		"expiresIn": int(rechargeQRTTL.Seconds()),
	})
}

// Confirm is the HTTP surface of ConfirmRecharge.
func (s *RechargeService) Confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if !decodeStrict(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result := s.ConfirmRecharge(r.Context(), req.Code)
	RespondJSON(w, statusFor(result), result)
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
