package ledgerdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"orderbridge/internal/db/dialect"
	"orderbridge/internal/ledger"
	"orderbridge/internal/orders"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var (
	testKey   = orders.Key{ExternalOrderID: "O1", InstanceID: "I1"}
	fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entryCols = []string{"status", "payload_hash", "external_doc_id", "external_doc_number", "error_message", "processing_at", "created_at", "updated_at"}
)

func newLedgerMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func newTestStore(db *sql.DB, policy ledger.Policy) *Store {
	store := NewStore(db, dialect.Postgres, policy)
	store.now = func() time.Time { return fixedTime }
	return store
}

func TestStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS order_ledger_status_idx").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	if _, err := NewStoreWithSchema(context.Background(), db, dialect.Postgres, ledger.Policy{}); err != nil {
		t.Fatalf("NewStoreWithSchema: %v", err)
	}
}

func TestStore_InitSchemaError(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_ledger").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	if _, err := NewStoreWithSchema(context.Background(), db, dialect.Postgres, ledger.Policy{}); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestStore_Begin_InsertsNewEntry(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WithArgs("O1", "I1", "PROCESSING", "h1", fixedTime, fixedTime, fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	res, err := newTestStore(db, ledger.Policy{}).Begin(context.Background(), testKey, "h1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Outcome != ledger.Started || res.Entry.Status != ledger.StatusProcessing || res.Entry.PayloadHash != "h1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestStore_Begin_DuplicateCreated(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM order_ledger WHERE external_order_id = \$1 AND instance_id = \$2 FOR UPDATE`).
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("CREATED", "h1", "100", "1000", nil, fixedTime, fixedTime, fixedTime))
	mock.ExpectCommit()
	mock.ExpectClose()

	res, err := newTestStore(db, ledger.Policy{}).Begin(context.Background(), testKey, "h1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Outcome != ledger.DuplicateCreated {
		t.Fatalf("expected duplicate, got %s", res.Outcome)
	}
	if res.Entry.ExternalDocID != "100" || res.Entry.ExternalDocNumber != "1000" {
		t.Fatalf("unexpected identifiers: %+v", res.Entry)
	}
}

func TestStore_Begin_ConflictHashDoesNotUpdate(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, payload_hash").
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("FAILED", "h1", nil, nil, "boom", fixedTime, fixedTime, fixedTime))
	mock.ExpectCommit()
	mock.ExpectClose()

	res, err := newTestStore(db, ledger.Policy{}).Begin(context.Background(), testKey, "h2")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Outcome != ledger.ConflictHash {
		t.Fatalf("expected conflict, got %s", res.Outcome)
	}
	if res.Entry.PayloadHash != "h1" || res.Entry.ErrorMessage != "boom" {
		t.Fatalf("conflict must report the stored entry: %+v", res.Entry)
	}
}

func TestStore_Begin_InProgress(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, payload_hash").
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("PROCESSING", "h1", nil, nil, nil, fixedTime.Add(-time.Hour), fixedTime, fixedTime))
	mock.ExpectCommit()
	mock.ExpectClose()

	res, err := newTestStore(db, ledger.Policy{}).Begin(context.Background(), testKey, "h1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Outcome != ledger.InProgress {
		t.Fatalf("expected in progress, got %s", res.Outcome)
	}
}

func TestStore_Begin_RetriesFailedEntry(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, payload_hash").
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("FAILED", "h1", nil, nil, "downstream rejected", fixedTime.Add(-time.Hour), fixedTime.Add(-time.Hour), fixedTime.Add(-time.Hour)))
	mock.ExpectExec("UPDATE order_ledger SET status = \\$1, payload_hash = \\$2, error_message = NULL").
		WithArgs("PROCESSING", "h1", fixedTime, fixedTime, "O1", "I1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	res, err := newTestStore(db, ledger.Policy{}).Begin(context.Background(), testKey, "h1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Outcome != ledger.Started || res.Entry.Status != ledger.StatusProcessing || res.Entry.ErrorMessage != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.Entry.ProcessingAt.Equal(fixedTime) {
		t.Fatalf("processing time not refreshed: %v", res.Entry.ProcessingAt)
	}
}

func TestStore_Begin_ReclaimsStaleProcessing(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, payload_hash").
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("PROCESSING", "h1", nil, nil, nil, fixedTime.Add(-time.Hour), fixedTime, fixedTime))
	mock.ExpectExec("UPDATE order_ledger SET status").
		WithArgs("PROCESSING", "h1", fixedTime, fixedTime, "O1", "I1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	res, err := newTestStore(db, ledger.Policy{StaleAfter: 10 * time.Minute}).Begin(context.Background(), testKey, "h1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Outcome != ledger.Started {
		t.Fatalf("expected stale entry to be reclaimed, got %s", res.Outcome)
	}
}

func TestStore_Begin_InsertErrorRollsBack(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	mock.ExpectClose()

	if _, err := newTestStore(db, ledger.Policy{}).Begin(context.Background(), testKey, "h1"); err == nil {
		t.Fatalf("expected insert error")
	}
}

func TestStore_Begin_MissingAfterConflict(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, payload_hash").
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectRollback()
	mock.ExpectClose()

	if _, err := newTestStore(db, ledger.Policy{}).Begin(context.Background(), testKey, "h1"); err == nil {
		t.Fatalf("expected error when entry vanishes after insert conflict")
	}
}

func TestStore_FinalizeCreated(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE order_ledger SET status = \\$1, external_doc_id = \\$2").
		WithArgs("CREATED", "100", "1000", fixedTime, "O1", "I1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	if err := newTestStore(db, ledger.Policy{}).FinalizeCreated(context.Background(), testKey, "100", "1000"); err != nil {
		t.Fatalf("FinalizeCreated: %v", err)
	}
}

func TestStore_FinalizeCreated_NotFound(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE order_ledger SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	err := newTestStore(db, ledger.Policy{}).FinalizeCreated(context.Background(), testKey, "100", "1000")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_FinalizeFailed(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE order_ledger SET status = \\$1, error_message = \\$2").
		WithArgs("FAILED", "boom", fixedTime, "O1", "I1", "CREATED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	if err := newTestStore(db, ledger.Policy{}).FinalizeFailed(context.Background(), testKey, "boom"); err != nil {
		t.Fatalf("FinalizeFailed: %v", err)
	}
}

func TestStore_FinalizeFailed_LeavesCreatedAlone(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE order_ledger SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, payload_hash").
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("CREATED", "h1", "100", "1000", nil, fixedTime, fixedTime, fixedTime))
	mock.ExpectClose()

	if err := newTestStore(db, ledger.Policy{}).FinalizeFailed(context.Background(), testKey, "late"); err != nil {
		t.Fatalf("FinalizeFailed: %v", err)
	}
}

func TestStore_FinalizeFailed_NotFound(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE order_ledger SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, payload_hash").
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectClose()

	err := newTestStore(db, ledger.Policy{}).FinalizeFailed(context.Background(), testKey, "boom")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_FinalizeFailed_RowsAffectedError(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE order_ledger SET status").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected boom")))
	mock.ExpectClose()

	if err := newTestStore(db, ledger.Policy{}).FinalizeFailed(context.Background(), testKey, "boom"); err == nil {
		t.Fatalf("expected rows affected error")
	}
}

func TestStore_Get(t *testing.T) {
	db, mock, cleanup := newLedgerMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery(`FROM order_ledger WHERE external_order_id = \$1 AND instance_id = \$2$`).
		WithArgs("O1", "I1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("FAILED", "h1", nil, nil, "boom", fixedTime, fixedTime, fixedTime))
	mock.ExpectClose()

	entry, err := newTestStore(db, ledger.Policy{}).Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Key != testKey || entry.Status != ledger.StatusFailed || entry.ErrorMessage != "boom" || entry.ExternalDocID != "" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}
