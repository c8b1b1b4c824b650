package masterdatadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderbridge/internal/db/dialect"
	"orderbridge/internal/masterdata"
)

// Store reads the master-data projection from md_* tables.
type Store struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewStore constructs a SQL master-data store.
func NewStore(db *sql.DB, d dialect.Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB, d dialect.Dialect) (*Store, error) {
	store := NewStore(db, d)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the projection tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, table := range masterdata.Tables {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (code TEXT PRIMARY KEY)`, table.SQLName()),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_lower_code_idx ON %[1]s (lower(code))`, table.SQLName()),
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, table masterdata.Table, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(fmt.Sprintf(
		`SELECT 1 FROM %s WHERE lower(code) = ? LIMIT 1`, table.SQLName())),
		masterdata.Normalize(code),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Missing(ctx context.Context, table masterdata.Table, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	args := make([]any, len(codes))
	for i, code := range codes {
		args[i] = masterdata.Normalize(code)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(fmt.Sprintf(
		`SELECT lower(code) FROM %s WHERE lower(code) IN (%s)`, table.SQLName(), dialect.Placeholders(len(codes)))),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(codes))
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		found[code] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, code := range codes {
		if _, ok := found[masterdata.Normalize(code)]; !ok {
			missing = append(missing, code)
		}
	}
	return missing, nil
}

// Replace swaps the contents of a table in one transaction.
func (s *Store) Replace(ctx context.Context, table masterdata.Table, codes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table.SQLName())); err != nil {
		return err
	}
	insert := s.dialect.Rebind(fmt.Sprintf(
		`INSERT INTO %s (code) VALUES (?) ON CONFLICT (code) DO NOTHING`, table.SQLName()))
	for _, code := range codes {
		if _, err := tx.ExecContext(ctx, insert, masterdata.Normalize(code)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
