package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piphub/backend/internal/middleware"
)

func newWalletService(t *testing.T) (*WalletService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fraudDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { fraudDB.Close() })

	cfg := testLedgerConfig()
	guard := NewFraudGuard(fraudDB, cfg, zerolog.Nop())
	events := NewEventPublisher(nil, zerolog.Nop())
	ledger := NewCoinTransactionService(db, guard, events, cfg, zerolog.Nop())
	return NewWalletService(db, ledger, zerolog.Nop()), mock
}

func authedRequest(method, target string, body []byte, userID, role string) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	return r.WithContext(middleware.WithUser(context.Background(), userID, role))
}

func TestWalletService_GetWallet(t *testing.T) {
	t.Run("returns the wallet", func(t *testing.T) {
		ws, mock := newWalletService(t)

		mock.ExpectQuery("SELECT id, user_id, balance, available_balance, status, version, updated_at").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "user_id", "balance", "available_balance", "status", "version", "updated_at"}).
				AddRow("w1", "user1", 250, 250, "ACTIVE", 4, time.Now()))

		w := httptest.NewRecorder()
		ws.GetWallet(w, authedRequest("GET", "/api/v1/coins/wallet", nil, "user1", "user"))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(250), resp["balance"])
		assert.Equal(t, float64(4), resp["version"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never-transacted user sees a zero balance", func(t *testing.T) {
		ws, mock := newWalletService(t)

		mock.ExpectQuery("SELECT id, user_id, balance, available_balance, status, version, updated_at").
			WithArgs("user2").
			WillReturnError(sql.ErrNoRows)

		w := httptest.NewRecorder()
		ws.GetWallet(w, authedRequest("GET", "/api/v1/coins/wallet", nil, "user2", "user"))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(0), resp["balance"])
	})

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		ws, _ := newWalletService(t)

		w := httptest.NewRecorder()
		ws.GetWallet(w, httptest.NewRequest("GET", "/api/v1/coins/wallet", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWalletService_ListTransactions(t *testing.T) {
	t.Run("limit outside bounds fails validation", func(t *testing.T) {
		ws, _ := newWalletService(t)

		w := httptest.NewRecorder()
		ws.ListTransactions(w, authedRequest("GET", "/api/v1/coins/transactions?limit=1000", nil, "user1", "user"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns recent history", func(t *testing.T) {
		ws, mock := newWalletService(t)

		mock.ExpectQuery("SELECT id, user_id, amount, type, trigger_code, channel, description").
			WithArgs("user1", 20).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "user_id", "amount", "type", "trigger_code", "channel", "description",
					"metadata", "idempotency_key", "status", "created_at"}).
				AddRow("tx-1", "user1", 100, "earn", "onboarding.signup_bonus", "onboarding",
					"Signup bonus", []byte("null"), nil, "COMPLETED", time.Now()).
				AddRow("tx-2", "user1", -40, "spend", "marketplace.item_purchased", "marketplace",
					"Indicator pack", []byte("null"), nil, "COMPLETED", time.Now()))

		w := httptest.NewRecorder()
		ws.ListTransactions(w, authedRequest("GET", "/api/v1/coins/transactions", nil, "user1", "user"))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(2), resp["count"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletService_CreateTransaction(t *testing.T) {
	t.Run("invalid body is rejected", func(t *testing.T) {
		ws, _ := newWalletService(t)

		w := httptest.NewRecorder()
		ws.CreateTransaction(w, authedRequest("POST", "/api/v1/coins/transactions",
			[]byte("not json"), "user1", "user"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		ws, _ := newWalletService(t)

		w := httptest.NewRecorder()
		ws.CreateTransaction(w, authedRequest("POST", "/api/v1/coins/transactions",
			[]byte(`{"amount": 10, "surprise": true}`), "user1", "user"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("executes for the authenticated user regardless of body userId", func(t *testing.T) {
		ws, mock := newWalletService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, balance, version, status FROM wallets").
			WithArgs("user1").
			WillReturnRows(walletRows("w1", 0, 1))
		mock.ExpectExec("INSERT INTO coin_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE wallets SET balance").
			WithArgs(int64(25), "w1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE users SET total_coins").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body := []byte(`{"userId":"someone-else","amount":25,"trigger":"forum.post_created","channel":"forum","description":"Post reward"}`)
		w := httptest.NewRecorder()
		ws.CreateTransaction(w, authedRequest("POST", "/api/v1/coins/transactions", body, "user1", "user"))

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, float64(25), resp["newBalance"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletService_AdminAdjust(t *testing.T) {
	t.Run("non-admin is forbidden", func(t *testing.T) {
		ws, _ := newWalletService(t)

		body := []byte(`{"userId":"user1","amount":100,"trigger":"admin.manual_grant","channel":"admin","description":"Grant"}`)
		w := httptest.NewRecorder()
		ws.AdminAdjust(w, authedRequest("POST", "/api/v1/admin/coins/adjust", body, "user1", "user"))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin grant succeeds above the fraud ceiling", func(t *testing.T) {
		ws, mock := newWalletService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, balance, version, status FROM wallets").
			WithArgs("user1").
			WillReturnRows(walletRows("w1", 0, 1))
		mock.ExpectExec("INSERT INTO coin_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE wallets SET balance").
			WithArgs(int64(1500), "w1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE users SET total_coins").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("SAVEPOINT audit_log").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(sqlmock.AnyArg(), "user1", "admin9", int64(1500), int64(0), int64(1500), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("RELEASE SAVEPOINT audit_log").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		body := []byte(`{"userId":"user1","amount":1500,"trigger":"admin.manual_grant","channel":"admin","description":"Contest prize"}`)
		w := httptest.NewRecorder()
		ws.AdminAdjust(w, authedRequest("POST", "/api/v1/admin/coins/adjust", body, "admin9", "admin"))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
