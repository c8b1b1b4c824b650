package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"orderbridge/cmd/server/config"
	grpcadapter "orderbridge/internal/adapters/grpc"
	"orderbridge/internal/db/dialect"
	ledgerdb "orderbridge/internal/db/ledger"
	masterdatadb "orderbridge/internal/db/masterdata"
	"orderbridge/internal/gateway"
	"orderbridge/internal/ledger"
	"orderbridge/internal/masterdata"
	"orderbridge/internal/observability"
	"orderbridge/internal/reliability"

	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var openPostgres = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// databases opens each SQL database once so the ledger and master-data
// stores share a pool. SQLite in particular allows a single writer.
type databases struct {
	open map[string]*sql.DB
}

func newDatabases() *databases {
	return &databases{open: make(map[string]*sql.DB)}
}

func (d *databases) get(backend, databaseURL, sqlitePath string) (*sql.DB, dialect.Dialect, error) {
	switch backend {
	case config.BackendPostgres:
		key := "pgx:" + databaseURL
		if db, ok := d.open[key]; ok {
			return db, dialect.Postgres, nil
		}
		db, err := openPostgres(databaseURL)
		if err != nil {
			return nil, dialect.Dialect{}, err
		}
		d.open[key] = db
		return db, dialect.Postgres, nil
	case config.BackendSQLite:
		key := "sqlite:" + sqlitePath
		if db, ok := d.open[key]; ok {
			return db, dialect.SQLite, nil
		}
		db, err := ledgerdb.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, dialect.Dialect{}, err
		}
		d.open[key] = db
		return db, dialect.SQLite, nil
	default:
		return nil, dialect.Dialect{}, fmt.Errorf("backend %q is not a SQL database", backend)
	}
}

func (d *databases) Close() error {
	var errs []error
	for name, db := range d.open {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func buildLedger(ctx context.Context, cfg config.LedgerConfig, dbs *databases) (ledger.Store, error) {
	policy := ledger.Policy{StaleAfter: cfg.StaleAfter}
	if cfg.Backend == config.BackendMemory {
		return ledger.NewMemoryStore(policy), nil
	}
	db, d, err := dbs.get(cfg.Backend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	store, err := ledgerdb.NewStoreWithSchema(ctx, db, d, policy)
	if err != nil {
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return store, nil
}

// masterDataStore is a read store that can also be reseeded.
type masterDataStore interface {
	masterdata.Store
	masterdata.Replacer
}

func buildMasterData(ctx context.Context, cfg config.MasterDataConfig, dbs *databases, logger *slog.Logger) (masterDataStore, func(), error) {
	var (
		store   masterDataStore
		cleanup = func() {}
	)
	switch cfg.Backend {
	case config.BackendMemory:
		store = masterdata.NewMemoryStore()
	case config.BackendRedis:
		redisCfg, err := config.LoadRedis()
		if err != nil {
			return nil, nil, err
		}
		client, err := openRedis(ctx, redisCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		store = masterdata.NewRedisStore(client)
		cleanup = func() {
			if err := client.Close(); err != nil {
				logger.Error("close redis", "err", err)
			}
		}
	default:
		db, d, err := dbs.get(cfg.Backend, cfg.DatabaseURL, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open master data database: %w", err)
		}
		sqlStore, err := masterdatadb.NewStoreWithSchema(ctx, db, d)
		if err != nil {
			return nil, nil, fmt.Errorf("init master data schema: %w", err)
		}
		store = sqlStore
	}

	if cfg.SeedFile != "" {
		seed, err := masterdata.LoadSeedFile(cfg.SeedFile)
		if err == nil {
			err = seed.Apply(ctx, store)
		}
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("master data seeded", "file", cfg.SeedFile, "products", len(seed.Products))
	}
	return store, cleanup, nil
}

func buildGateway(cfg config.GatewayConfig, stats *observability.Stats, logger *slog.Logger) *gateway.Gateway {
	factory := grpcadapter.NewERPSessionFactory(cfg.Target,
		grpcpkg.WithTransportCredentials(insecure.NewCredentials()),
	)
	limiter := reliability.NewRateLimiter(cfg.RateLimitInterval, cfg.RateLimitBurst)
	limiter.OnWait(stats.AddRateLimitWait)

	return gateway.New(factory, gateway.Config{
		CallTimeout: cfg.CallTimeout,
		Breaker: reliability.NewCircuitBreaker(reliability.BreakerConfig{
			MaxFailures:  cfg.BreakerMaxFailures,
			ResetTimeout: cfg.BreakerResetTimeout,
			IsFailure:    gateway.CountsAgainstBreaker,
		}),
		Limiter: limiter,
		Logger:  logger,
	})
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
