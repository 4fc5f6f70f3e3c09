package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/piphub/backend/internal/config"
	"github.com/piphub/backend/internal/database"
	mW "github.com/piphub/backend/internal/middleware"
	"github.com/piphub/backend/internal/services"
)

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Info().Err(err).Msg("Config file not found, using defaults")
	}

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	viper.BindEnv("coins.rate_limit_window", "COINS_RATE_LIMIT_WINDOW")
	viper.BindEnv("coins.rate_limit_max", "COINS_RATE_LIMIT_MAX")
	viper.BindEnv("coins.duplicate_window", "COINS_DUPLICATE_WINDOW")
	viper.BindEnv("coins.max_amount", "COINS_MAX_AMOUNT")
	viper.BindEnv("coins.audit_threshold", "COINS_AUDIT_THRESHOLD")
	viper.BindEnv("coins.treasury_interval", "COINS_TREASURY_INTERVAL")
	viper.BindEnv("coins.bot.enabled", "COINS_BOT_ENABLED")
	viper.BindEnv("coins.bot.interval", "COINS_BOT_INTERVAL")
	viper.BindEnv("coins.bot.user_ids", "COINS_BOT_USER_IDS")
	viper.BindEnv("coins.bot.max_amount", "COINS_BOT_MAX_AMOUNT")

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "coins").Logger()

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerCfg := config.LoadLedgerConfig()

	events := services.NewEventPublisher(redisClient, logger)
	fraud := services.NewFraudGuard(db, ledgerCfg, logger)
	ledger := services.NewCoinTransactionService(db, fraud, events, ledgerCfg, logger)
	walletService := services.NewWalletService(db, ledger, logger)
	rechargeService := services.NewRechargeService(redisClient, ledger, logger)
	treasuryService := services.NewTreasuryService(db, logger)
	botEconomy := services.NewBotEconomy(ledger, ledgerCfg, logger)

	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	go treasuryService.Run(jobCtx, ledgerCfg.TreasuryInterval)
	go botEconomy.Run(jobCtx)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(mW.NewRateLimiter(rate.Limit(100), 200).Middleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/coins/wallet", walletService.GetWallet)
			r.Get("/coins/transactions", walletService.ListTransactions)
			r.Post("/coins/transactions", walletService.CreateTransaction)

			r.Post("/coins/recharge/qr", rechargeService.GenerateQR)
			r.Post("/coins/recharge/confirm", rechargeService.Confirm)

			r.Post("/admin/coins/adjust", walletService.AdminAdjust)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Server shutting down")
	stopJobs()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server stopped")
}
