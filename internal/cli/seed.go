package cli

import (
	"context"
	"database/sql"
	"fmt"

	"orderbridge/internal/db/dialect"
	ledgerdb "orderbridge/internal/db/ledger"
	masterdatadb "orderbridge/internal/db/masterdata"
	"orderbridge/internal/masterdata"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// SeedOptions selects the master-data store to seed.
type SeedOptions struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
}

// NewSeedCommand creates the seed-masterdata command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{}
	cmd := &cobra.Command{
		Use:   "seed-masterdata <seed.yaml>",
		Short: "Replace master-data tables from a YAML seed file",
		Long: `Load customers, salespeople, warehouses and products from a YAML file
and replace the tables of a master-data store with them. A table missing
from the file is emptied.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := masterdata.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			store, closeFn, err := openReplacer(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := seed.Apply(cmd.Context(), store); err != nil {
				return err
			}

			out := &OutputFormatter{Writer: cmd.OutOrStdout()}
			counts := map[string]int{}
			rows := make([][]string, 0, len(masterdata.Tables))
			for _, t := range masterdata.Tables {
				counts[string(t)] = len(seed.Codes(t))
				rows = append(rows, []string{string(t), fmt.Sprint(len(seed.Codes(t)))})
			}
			if rootOpts.Format == "json" {
				return out.JSON(counts)
			}
			return out.Table([]string{"TABLE", "CODES"}, rows)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Backend, "backend", envOr("MASTERDATA_BACKEND", "sqlite"), "store backend (postgres|sqlite|redis)")
	f.StringVar(&opts.DatabaseURL, "database-url", envOr("DATABASE_URL", ""), "Postgres DSN")
	f.StringVar(&opts.SQLitePath, "sqlite-path", envOr("SQLITE_PATH", "orderbridge.db"), "SQLite database file")
	f.StringVar(&opts.RedisURL, "redis-url", envOr("REDIS_URL", ""), "Redis URL")
	return cmd
}

func openReplacer(ctx context.Context, opts *SeedOptions) (masterdata.Replacer, func(), error) {
	switch opts.Backend {
	case "redis":
		if opts.RedisURL == "" {
			return nil, nil, fmt.Errorf("--redis-url is required for the redis backend")
		}
		ropts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(ropts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return masterdata.NewRedisStore(client), func() { _ = client.Close() }, nil
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("--database-url is required for the postgres backend")
		}
		db, err := sql.Open("pgx", opts.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return sqlReplacer(ctx, db, dialect.Postgres)
	case "sqlite":
		db, err := ledgerdb.OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlReplacer(ctx, db, dialect.SQLite)
	default:
		return nil, nil, fmt.Errorf("unsupported backend %q", opts.Backend)
	}
}

func sqlReplacer(ctx context.Context, db *sql.DB, d dialect.Dialect) (masterdata.Replacer, func(), error) {
	store, err := masterdatadb.NewStoreWithSchema(ctx, db, d)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}
