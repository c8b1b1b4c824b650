package masterdatadb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"orderbridge/internal/db/dialect"
	ledgerdb "orderbridge/internal/db/ledger"
	"orderbridge/internal/masterdata"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMasterMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
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

func TestStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMasterMockDB(t)
	t.Cleanup(cleanup)

	for _, table := range masterdata.Tables {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table.SQLName()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS " + table.SQLName() + "_lower_code_idx").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectClose()

	if _, err := NewStoreWithSchema(context.Background(), db, dialect.Postgres); err != nil {
		t.Fatalf("NewStoreWithSchema: %v", err)
	}
}

func TestStore_Exists(t *testing.T) {
	db, mock, cleanup := newMasterMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery(`SELECT 1 FROM md_customers WHERE lower\(code\) = \$1`).
		WithArgs("cust").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM md_customers`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectClose()

	store := NewStore(db, dialect.Postgres)
	ok, err := store.Exists(context.Background(), masterdata.Customers, " CUST ")
	if err != nil || !ok {
		t.Fatalf("expected CUST to exist: ok=%v err=%v", ok, err)
	}
	ok, err = store.Exists(context.Background(), masterdata.Customers, "nobody")
	if err != nil || ok {
		t.Fatalf("expected nobody to be missing: ok=%v err=%v", ok, err)
	}
}

func TestStore_Missing(t *testing.T) {
	db, mock, cleanup := newMasterMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery(`SELECT lower\(code\) FROM md_products WHERE lower\(code\) IN \(\$1, \$2, \$3\)`).
		WithArgs("a", "b", "c").
		WillReturnRows(sqlmock.NewRows([]string{"lower"}).AddRow("a"))
	mock.ExpectClose()

	missing, err := NewStore(db, dialect.Postgres).Missing(context.Background(), masterdata.Products, []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	if len(missing) != 2 || missing[0] != "B" || missing[1] != "C" {
		t.Fatalf("unexpected missing codes: %v", missing)
	}
}

func TestStore_MissingQueryError(t *testing.T) {
	db, mock, cleanup := newMasterMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery(`SELECT lower\(code\) FROM md_products`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectClose()

	if _, err := NewStore(db, dialect.Postgres).Missing(context.Background(), masterdata.Products, []string{"A"}); err == nil {
		t.Fatalf("expected query error")
	}
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	db, err := ledgerdb.OpenSQLite(filepath.Join(t.TempDir(), "md.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	store, err := NewStoreWithSchema(ctx, db, dialect.SQLite)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if err := store.Replace(ctx, masterdata.Products, []string{"SKU-A", "sku-a", "SKU-B"}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	missing, err := store.Missing(ctx, masterdata.Products, []string{"sku-A", "SKU-C"})
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	if len(missing) != 1 || missing[0] != "SKU-C" {
		t.Fatalf("unexpected missing: %v", missing)
	}

	if err := store.Replace(ctx, masterdata.Products, []string{"SKU-C"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	ok, err := store.Exists(ctx, masterdata.Products, "SKU-A")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("expected SKU-A to be replaced")
	}
}
