package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the escrow core service.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	MaxTotalPoints          int64
	ReferralRewardPercent   int
	EscrowAutoCompleteHours int
	StoreAutoCompleteHours  int
	MaxDurationHours        int
	ConflictRetries         int
	IdempotencyTTL          time.Duration
	SweepBatchSize          int

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int

	EscrowExpirySweepInterval time.Duration
	AutoCompleteSweepInterval time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Ledger struct {
		MaxTotalPoints          int64 `yaml:"max_total_points"`
		ReferralRewardPercent   int   `yaml:"referral_reward_percent"`
		EscrowAutoCompleteHours int   `yaml:"escrow_auto_complete_hours"`
		StoreAutoCompleteHours  int   `yaml:"store_auto_complete_hours"`
		MaxDurationHours        int   `yaml:"max_duration_hours"`
	} `yaml:"ledger"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                 "escrow-core",
		HTTPPort:                  8080,
		GRPCPort:                  9090,
		MaxTotalPoints:            1_000_000,
		ReferralRewardPercent:     10,
		EscrowAutoCompleteHours:   72,
		StoreAutoCompleteHours:    72,
		MaxDurationHours:          720,
		ConflictRetries:           3,
		IdempotencyTTL:            7 * 24 * time.Hour,
		SweepBatchSize:            100,
		MaxDBConns:                20,
		OutboxPollInterval:        2 * time.Second,
		OutboxBatchSize:           100,
		OutboxClaimTTL:            30 * time.Second,
		OutboxMaxRetries:          5,
		EscrowExpirySweepInterval: time.Minute,
		AutoCompleteSweepInterval: 5 * time.Minute,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Ledger.MaxTotalPoints > 0 {
			cfg.MaxTotalPoints = f.Ledger.MaxTotalPoints
		}
		if f.Ledger.ReferralRewardPercent > 0 {
			cfg.ReferralRewardPercent = f.Ledger.ReferralRewardPercent
		}
		if f.Ledger.EscrowAutoCompleteHours > 0 {
			cfg.EscrowAutoCompleteHours = f.Ledger.EscrowAutoCompleteHours
		}
		if f.Ledger.StoreAutoCompleteHours > 0 {
			cfg.StoreAutoCompleteHours = f.Ledger.StoreAutoCompleteHours
		}
		if f.Ledger.MaxDurationHours > 0 {
			cfg.MaxDurationHours = f.Ledger.MaxDurationHours
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.MaxTotalPoints = int64(envInt("MAX_TOTAL_POINTS", int(cfg.MaxTotalPoints)))
	cfg.ReferralRewardPercent = envInt("REFERRAL_REWARD_PERCENT", cfg.ReferralRewardPercent)
	cfg.EscrowAutoCompleteHours = envInt("ESCROW_AUTO_COMPLETE_HOURS", cfg.EscrowAutoCompleteHours)
	cfg.StoreAutoCompleteHours = envInt("STORE_AUTO_COMPLETE_HOURS", cfg.StoreAutoCompleteHours)
	cfg.MaxDurationHours = envInt("MAX_DURATION_HOURS", cfg.MaxDurationHours)
	cfg.ConflictRetries = envInt("CONFLICT_RETRIES", cfg.ConflictRetries)
	cfg.SweepBatchSize = envInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)

	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.EscrowExpirySweepInterval = time.Duration(envInt("ESCROW_EXPIRY_SWEEP_SECONDS", int(cfg.EscrowExpirySweepInterval.Seconds()))) * time.Second
	cfg.AutoCompleteSweepInterval = time.Duration(envInt("AUTO_COMPLETE_SWEEP_SECONDS", int(cfg.AutoCompleteSweepInterval.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
