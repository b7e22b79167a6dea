// Package sqlstore implements storage.Store on database/sql with PostgreSQL and SQLite dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/storage"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	sqliteDSNParams = "_busy_timeout=5000&_journal_mode=WAL&_fk=1"
)

// Store SQL-backed storage.Store.
type Store struct {
	db     *sql.DB
	driver string
	l      *zap.Logger
}

// Open connects to the database, applies the schema and returns a ready store.
func Open(ctx context.Context, l *zap.Logger, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqliteDSNParams
		}
	default:
		return nil, errors.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	if driver == DriverSQLite {
		// single writer, avoids SQLITE_BUSY on concurrent commits
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s database", driver)
	}

	s := &Store{db: db, driver: driver, l: l}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Info("sql store ready", zap.String("driver", driver))

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := schemaSQLite
	if s.driver == DriverPostgres {
		stmts = schemaPostgres
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}

	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.Store = (*Store)(nil)

var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS instruments (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		asset_class TEXT NOT NULL,
		logo_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		symbol TEXT NOT NULL REFERENCES instruments(symbol),
		type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		fees TEXT,
		total TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_wallet_symbol ON transactions (wallet_id, symbol)`,
	`CREATE TABLE IF NOT EXISTS holdings (
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		symbol TEXT NOT NULL REFERENCES instruments(symbol),
		quantity TEXT NOT NULL,
		avg_cost TEXT NOT NULL,
		PRIMARY KEY (wallet_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_heads (
		wallet_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		head INTEGER NOT NULL,
		PRIMARY KEY (wallet_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT PRIMARY KEY,
		price TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	)`,
}

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS instruments (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		asset_class TEXT NOT NULL,
		logo_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		symbol TEXT NOT NULL REFERENCES instruments(symbol),
		type TEXT NOT NULL,
		quantity NUMERIC NOT NULL,
		price NUMERIC NOT NULL,
		fees NUMERIC,
		total NUMERIC NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_wallet_symbol ON transactions (wallet_id, symbol)`,
	`CREATE TABLE IF NOT EXISTS holdings (
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		symbol TEXT NOT NULL REFERENCES instruments(symbol),
		quantity NUMERIC NOT NULL,
		avg_cost NUMERIC NOT NULL,
		PRIMARY KEY (wallet_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_heads (
		wallet_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		head BIGINT NOT NULL,
		PRIMARY KEY (wallet_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT PRIMARY KEY,
		price NUMERIC NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL
	)`,
}
