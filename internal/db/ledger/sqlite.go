package ledgerdb

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens an embedded SQLite database suitable for the ledger and
// master-data stores.
//
// Transactions begin IMMEDIATE so a ledger Begin holds the database write
// lock from its first statement, and the pool is limited to one connection
// because SQLite admits a single writer.
func OpenSQLite(path string) (*sql.DB, error) {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}
