// Package config reads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"orderbridge/internal/orders"
)

// Storage backends accepted by LEDGER_BACKEND and MASTERDATA_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// HTTPConfig holds the ingestion API settings.
type HTTPConfig struct {
	Addr              string
	APIKey            string
	RateLimitInterval time.Duration
	RateLimitBurst    int
	MaxBodyBytes      int64
}

// GRPCConfig holds the gRPC listener and its rate limit.
type GRPCConfig struct {
	Addr              string
	APIKey            string
	RateLimitInterval time.Duration
	RateLimitBurst    int
	EnableReflection  bool
}

// ObservabilityConfig holds the HTTP address for /metrics and /stats.
type ObservabilityConfig struct {
	Addr string
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// LedgerConfig selects and tunes the idempotency ledger store.
type LedgerConfig struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	StaleAfter  time.Duration
	JournalPath string
}

// MasterDataConfig selects the master-data read store.
type MasterDataConfig struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	SeedFile    string
}

// GatewayConfig holds the downstream ERP connection and its guards.
type GatewayConfig struct {
	Target              string
	CallTimeout         time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	RateLimitInterval   time.Duration
	RateLimitBurst      int
}

// KafkaConfig enables Kafka ingestion when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Enabled reports whether Kafka ingestion is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// LoadHTTP reads the ingestion API settings. An empty API_KEY disables
// authentication; a zero rate limit disables limiting.
func LoadHTTP() (HTTPConfig, error) {
	cfg := HTTPConfig{
		Addr:   stringOr("HTTP_ADDR", ":8080"),
		APIKey: lookup("API_KEY"),
	}
	var err error
	if cfg.RateLimitInterval, err = durationOr("HTTP_RATE_LIMIT_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = intOr("HTTP_RATE_LIMIT_BURST", 0); err != nil {
		return cfg, err
	}
	if cfg.MaxBodyBytes, err = int64Or("HTTP_MAX_BODY_BYTES", 8<<20); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadGRPC reads the gRPC listener settings. Reflection is enabled outside
// APP_ENV=production.
func LoadGRPC() (GRPCConfig, error) {
	cfg := GRPCConfig{
		Addr:             stringOr("GRPC_ADDR", ":50051"),
		APIKey:           lookup("API_KEY"),
		EnableReflection: lookup("APP_ENV") != "production",
	}
	var err error
	if cfg.RateLimitInterval, err = durationOr("GRPC_RATE_LIMIT_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = intOr("GRPC_RATE_LIMIT_BURST", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadObservability reads the metrics HTTP server address from env.
func LoadObservability() (ObservabilityConfig, error) {
	return ObservabilityConfig{Addr: stringOr("OBS_ADDR", ":9090")}, nil
}

// LoadLogging reads LOG_LEVEL (debug|info|warn|error) and LOG_FORMAT
// (json|text).
func LoadLogging() (LoggingConfig, error) {
	cfg := LoggingConfig{Format: strings.ToLower(stringOr("LOG_FORMAT", "json"))}
	if err := oneOf("LOG_FORMAT", cfg.Format, "json", "text"); err != nil {
		return cfg, err
	}
	if err := cfg.Level.UnmarshalText([]byte(stringOr("LOG_LEVEL", "info"))); err != nil {
		return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

// LoadLedger reads the ledger store settings. LEDGER_STALE_AFTER is off
// unless set: PROCESSING entries are never reclaimed by default.
func LoadLedger() (LedgerConfig, error) {
	cfg := LedgerConfig{
		Backend:     strings.ToLower(stringOr("LEDGER_BACKEND", BackendSQLite)),
		SQLitePath:  stringOr("SQLITE_PATH", "orderbridge.db"),
		JournalPath: stringOr("LEDGER_JOURNAL_PATH", "ledger-journal.jsonl"),
	}
	if err := oneOf("LEDGER_BACKEND", cfg.Backend, BackendPostgres, BackendSQLite, BackendMemory); err != nil {
		return cfg, err
	}
	if cfg.Backend == BackendPostgres {
		url, err := requiredString("DATABASE_URL")
		if err != nil {
			return cfg, err
		}
		cfg.DatabaseURL = url
	}
	var err error
	if cfg.StaleAfter, err = durationOr("LEDGER_STALE_AFTER", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadMasterData reads the master-data store settings. The backend
// defaults to the ledger's SQL engine.
func LoadMasterData() (MasterDataConfig, error) {
	def := BackendSQLite
	if strings.EqualFold(lookup("LEDGER_BACKEND"), BackendPostgres) {
		def = BackendPostgres
	}
	cfg := MasterDataConfig{
		Backend:    strings.ToLower(stringOr("MASTERDATA_BACKEND", def)),
		SQLitePath: stringOr("SQLITE_PATH", "orderbridge.db"),
		SeedFile:   lookup("MASTERDATA_SEED_FILE"),
	}
	if err := oneOf("MASTERDATA_BACKEND", cfg.Backend, BackendPostgres, BackendSQLite, BackendRedis, BackendMemory); err != nil {
		return cfg, err
	}
	if cfg.Backend == BackendPostgres {
		url, err := requiredString("DATABASE_URL")
		if err != nil {
			return cfg, err
		}
		cfg.DatabaseURL = url
	}
	return cfg, nil
}

// LoadDefaults reads the master-data codes applied to every order.
func LoadDefaults() (orders.Defaults, error) {
	var d orders.Defaults
	var err error
	if d.CustomerCode, err = requiredString("DEFAULT_CUSTOMER_CODE"); err != nil {
		return d, err
	}
	if d.SalespersonCode, err = requiredString("DEFAULT_SALESPERSON_CODE"); err != nil {
		return d, err
	}
	if d.WarehouseCode, err = requiredString("DEFAULT_WAREHOUSE_CODE"); err != nil {
		return d, err
	}
	return d, nil
}

// LoadGateway reads the downstream ERP settings.
func LoadGateway() (GatewayConfig, error) {
	cfg := GatewayConfig{}
	var err error
	if cfg.Target, err = requiredString("ERP_GRPC_TARGET"); err != nil {
		return cfg, err
	}
	if cfg.CallTimeout, err = durationOr("ERP_CALL_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.BreakerMaxFailures, err = intOr("ERP_BREAKER_MAX_FAILURES", 5); err != nil {
		return cfg, err
	}
	if cfg.BreakerResetTimeout, err = durationOr("ERP_BREAKER_RESET_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval, err = durationOr("ERP_RATE_LIMIT_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = intOr("ERP_RATE_LIMIT_BURST", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadKafka reads the optional Kafka ingestion settings.
func LoadKafka() (KafkaConfig, error) {
	cfg := KafkaConfig{GroupID: stringOr("KAFKA_GROUP_ID", "orderbridge")}
	for _, b := range strings.Split(lookup("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Brokers = append(cfg.Brokers, b)
		}
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	topic, err := requiredString("KAFKA_TOPIC")
	if err != nil {
		return cfg, err
	}
	cfg.Topic = topic
	return cfg, nil
}
