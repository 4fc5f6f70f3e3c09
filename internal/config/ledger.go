package config

import (
	"time"

	"github.com/spf13/viper"
)

// LedgerConfig carries the tunable limits of the coin ledger. Defaults match
// the production economy; every value can be overridden via viper keys
// (coins.*) or the matching environment variables bound in main.
type LedgerConfig struct {
	// Fraud guard.
	RateLimitWindow  time.Duration // trailing window for the per-user rate limit
	RateLimitMax     int           // max transactions of any kind inside the window
	DuplicateWindow  time.Duration // trailing window for same-trigger suppression
	MaxAmount        int64         // per-transaction ceiling for non-admin triggers
	// Compliance.
	AuditThreshold int64 // abs(amount) above which an audit log entry is written
	// Background jobs.
	TreasuryInterval time.Duration
	BotEnabled       bool
	BotInterval      time.Duration
	BotUserIDs       []string
	BotMaxAmount     int64
}

func LoadLedgerConfig() *LedgerConfig {
	viper.SetDefault("coins.rate_limit_window", time.Minute)
	viper.SetDefault("coins.rate_limit_max", 10)
	viper.SetDefault("coins.duplicate_window", 5*time.Second)
	viper.SetDefault("coins.max_amount", 1000)
	viper.SetDefault("coins.audit_threshold", 500)
	viper.SetDefault("coins.treasury_interval", time.Hour)
	viper.SetDefault("coins.bot.enabled", false)
	viper.SetDefault("coins.bot.interval", 30*time.Second)
	viper.SetDefault("coins.bot.max_amount", 25)

	return &LedgerConfig{
		RateLimitWindow:  viper.GetDuration("coins.rate_limit_window"),
		RateLimitMax:     viper.GetInt("coins.rate_limit_max"),
		DuplicateWindow:  viper.GetDuration("coins.duplicate_window"),
		MaxAmount:        viper.GetInt64("coins.max_amount"),
		AuditThreshold:   viper.GetInt64("coins.audit_threshold"),
		TreasuryInterval: viper.GetDuration("coins.treasury_interval"),
		BotEnabled:       viper.GetBool("coins.bot.enabled"),
		BotInterval:      viper.GetDuration("coins.bot.interval"),
		BotUserIDs:       viper.GetStringSlice("coins.bot.user_ids"),
		BotMaxAmount:     viper.GetInt64("coins.bot.max_amount"),
	}
}
