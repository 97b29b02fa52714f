package app

import (
	"time"

	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/utils"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	IntegrityBudget    time.Duration
	IntegrityRulesPath string

	RetryAttempts int
	RetryBackoff  time.Duration

	OutboxInterval  time.Duration
	OutboxBatchSize int

	RecheckInterval  time.Duration
	RecheckBatchSize int

	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:               utils.GetEnv("PORT", "8080", log),
		Environment:        utils.GetEnv("APP_ENV", "development", log),
		Version:            utils.GetEnv("APP_VERSION", "dev", log),
		IntegrityBudget:    time.Duration(utils.GetEnvAsInt("INTEGRITY_BUDGET_MS", 500, log)) * time.Millisecond,
		IntegrityRulesPath: utils.GetEnv("INTEGRITY_RULES_PATH", "", log),
		RetryAttempts:      utils.GetEnvAsInt("LEDGER_RETRY_ATTEMPTS", 3, log),
		RetryBackoff:       time.Duration(utils.GetEnvAsInt("LEDGER_RETRY_BACKOFF_MS", 100, log)) * time.Millisecond,
		OutboxInterval:     time.Duration(utils.GetEnvAsInt("OUTBOX_INTERVAL_MS", 2000, log)) * time.Millisecond,
		OutboxBatchSize:    utils.GetEnvAsInt("OUTBOX_BATCH_SIZE", 100, log),
		RecheckInterval:    time.Duration(utils.GetEnvAsInt("RECHECK_INTERVAL_MS", 5000, log)) * time.Millisecond,
		RecheckBatchSize:   utils.GetEnvAsInt("RECHECK_BATCH_SIZE", 20, log),
		MetricsAddr:        utils.GetEnv("METRICS_ADDR", "", log),
	}
}
