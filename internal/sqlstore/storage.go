package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	SQLiteDriver   = "sqlite3"
	PostgresDriver = "postgres"
)

// Storage persists events and linkages in one SQL database. It works with
// both SQLite and PostgreSQL; queries are written with "?" placeholders and
// rebound for the driver.
type Storage struct {
	db *sqlx.DB
}

// Open connects to dsn with driver and runs the migrations. For SQLite the
// parent directory of the file is created when missing.
func Open(driver, dsn string) (*Storage, error) {
	driver = strings.TrimSpace(driver)
	if driver == "" {
		driver = SQLiteDriver
	}
	if driver == SQLiteDriver {
		if dir := filepath.Dir(sqlitePath(dsn)); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlstore: creating db dir: %w", err)
			}
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s: %w", driver, err)
	}
	if driver == SQLiteDriver {
		// A single connection keeps writers from tripping over SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	s, err := NewStorage(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewStorage(db *sql.DB, driver string) (*Storage, error) {
	s := &Storage{
		db: sqlx.NewDb(db, driver),
	}
	if err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	return path
}
