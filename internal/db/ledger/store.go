package ledgerdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"orderbridge/internal/db/dialect"
	"orderbridge/internal/ledger"
	"orderbridge/internal/orders"
)

// Store persists the idempotency ledger in Postgres or SQLite.
type Store struct {
	db      *sql.DB
	dialect dialect.Dialect
	policy  ledger.Policy
	now     func() time.Time
}

// NewStore constructs a ledger Store over an open database.
func NewStore(db *sql.DB, d dialect.Dialect, policy ledger.Policy) *Store {
	return &Store{
		db:      db,
		dialect: d,
		policy:  policy,
		now:     time.Now,
	}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB, d dialect.Dialect, policy ledger.Policy) (*Store, error) {
	store := NewStore(db, d, policy)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the ledger table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	timestamp := "TIMESTAMPTZ"
	if s.dialect.Name == dialect.SQLite.Name {
		timestamp = "TIMESTAMP"
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS order_ledger (
			external_order_id TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			external_doc_id TEXT,
			external_doc_number TEXT,
			error_message TEXT,
			processing_at %[1]s NOT NULL,
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL,
			PRIMARY KEY (external_order_id, instance_id)
		)`, timestamp),
		`CREATE INDEX IF NOT EXISTS order_ledger_status_idx ON order_ledger (status, processing_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Begin inserts a PROCESSING entry or, when the key already exists, locks
// the row and applies the ledger decision table within the same
// transaction. A concurrent insert of the same key blocks on the first
// transaction's uncommitted row, so the two callers never both observe an
// absent entry.
func (s *Store) Begin(ctx context.Context, key orders.Key, hash string) (ledger.BeginResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.BeginResult{}, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO order_ledger (external_order_id, instance_id, status, payload_hash, processing_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_order_id, instance_id) DO NOTHING`),
		key.ExternalOrderID, key.InstanceID, string(ledger.StatusProcessing), hash, now, now, now,
	)
	if err != nil {
		return ledger.BeginResult{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.BeginResult{}, err
	}
	if affected == 1 {
		if err := tx.Commit(); err != nil {
			return ledger.BeginResult{}, err
		}
		return ledger.BeginResult{
			Outcome: ledger.Started,
			Entry: ledger.Entry{
				Key:          key,
				Status:       ledger.StatusProcessing,
				PayloadHash:  hash,
				ProcessingAt: now,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
		}, nil
	}

	existing, err := s.get(ctx, tx, key, true)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.BeginResult{}, fmt.Errorf("ledger entry not found after insert conflict")
		}
		return ledger.BeginResult{}, err
	}

	decision := ledger.Decide(existing, hash, now, s.policy)
	if decision.Reprocess {
		existing = ledger.Reprocessed(existing, hash, now)
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`
			UPDATE order_ledger
			SET status = ?, payload_hash = ?, error_message = NULL, processing_at = ?, updated_at = ?
			WHERE external_order_id = ? AND instance_id = ?`),
			string(ledger.StatusProcessing), hash, now, now, key.ExternalOrderID, key.InstanceID,
		); err != nil {
			return ledger.BeginResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ledger.BeginResult{}, err
	}
	return ledger.BeginResult{Outcome: decision.Outcome, Entry: existing}, nil
}

// FinalizeCreated records a successful downstream commit.
func (s *Store) FinalizeCreated(ctx context.Context, key orders.Key, docID, docNumber string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE order_ledger
		SET status = ?, external_doc_id = ?, external_doc_number = ?, error_message = NULL, updated_at = ?
		WHERE external_order_id = ? AND instance_id = ?`),
		string(ledger.StatusCreated), docID, docNumber, s.now().UTC(), key.ExternalOrderID, key.InstanceID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// FinalizeFailed records a failed attempt. CREATED entries are left as they are.
func (s *Store) FinalizeFailed(ctx context.Context, key orders.Key, message string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE order_ledger
		SET status = ?, error_message = ?, updated_at = ?
		WHERE external_order_id = ? AND instance_id = ? AND status <> ?`),
		string(ledger.StatusFailed), message, s.now().UTC(), key.ExternalOrderID, key.InstanceID, string(ledger.StatusCreated),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	// Nothing updated: either the key is unknown or it is already CREATED.
	if _, err := s.get(ctx, s.db, key, false); err != nil {
		return err
	}
	return nil
}

// Get returns the entry for a key.
func (s *Store) Get(ctx context.Context, key orders.Key) (ledger.Entry, error) {
	return s.get(ctx, s.db, key, false)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q queryRower, key orders.Key, lock bool) (ledger.Entry, error) {
	query := `
		SELECT status, payload_hash, external_doc_id, external_doc_number, error_message, processing_at, created_at, updated_at
		FROM order_ledger
		WHERE external_order_id = ? AND instance_id = ?`
	if lock {
		query += s.dialect.ForUpdate
	}

	var (
		entry     = ledger.Entry{Key: key}
		status    string
		docID     sql.NullString
		docNumber sql.NullString
		errMsg    sql.NullString
	)
	row := q.QueryRowContext(ctx, s.dialect.Rebind(query), key.ExternalOrderID, key.InstanceID)
	if err := row.Scan(&status, &entry.PayloadHash, &docID, &docNumber, &errMsg, &entry.ProcessingAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, ledger.ErrNotFound
		}
		return ledger.Entry{}, err
	}
	entry.Status = ledger.Status(status)
	entry.ExternalDocID = docID.String
	entry.ExternalDocNumber = docNumber.String
	entry.ErrorMessage = errMsg.String
	return entry, nil
}
