// Package sqlstore implements the repository interfaces on database/sql.
//
// Two drivers are supported and picked from the DSN:
//
//   - "postgres://..." or "postgresql://..." → PostgreSQL through pgx's stdlib driver
//   - anything else                        → a SQLite file (or ":memory:") through modernc.org/sqlite
//
// Queries are written once with "?" placeholders and rebound for PostgreSQL.
// The schema lives in embedded goose migrations, one directory per dialect.
//
// CONNECTIONS AND THE POOL:
// sql.DB is a pool, not a connection. database/sql opens and closes
// connections behind our back as load changes, so any per-connection
// setting must travel with the DSN rather than be applied once with a
// PRAGMA statement: a statement reaches only the connection that ran it.
// For SQLite the DSN therefore carries
//
//	_pragma=busy_timeout(5000)   wait up to 5s for a competing writer instead of failing with SQLITE_BUSY
//	_pragma=journal_mode(WAL)    readers proceed while a webhook delivery writes
//
// ":memory:" is the exception: every new connection to it is a separate
// empty database, so the pool is pinned to a single connection.
//
// TIMEOUTS:
// Open pings under ConnectTimeout; every later query gets its own
// OpTimeout via opContext. Callers see a timeout as an ordinary error and
// translate it to apperror.StoreUnavailable.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultOpTimeout      = 45 * time.Second
)

// Options configures Open.
type Options struct {
	// DSN is a SQLite path, ":memory:", or a postgres:// URL.
	DSN string
	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
	// OpTimeout bounds every individual query.
	OpTimeout time.Duration
	// SkipMigrations leaves the schema untouched (used by `migrate status`).
	SkipMigrations bool
}

// DB wraps a sql.DB connection pool and implements the repository interfaces.
//
// The pool is shared by all requests; each query runs under its own
// operation timeout so a hung database cannot block a request forever.
type DB struct {
	conn      *sql.DB
	dialect   Dialect
	opTimeout time.Duration
}

// DialectFor picks the dialect for a DSN.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the store, verifies the connection and runs migrations.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("sqlstore: empty DSN")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}

	dialect := DialectFor(opts.DSN)
	driver, dsn := "pgx", opts.DSN
	if dialect == DialectSQLite {
		driver = "sqlite"
		var err error
		if dsn, err = sqliteDSN(opts.DSN); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite && opts.DSN == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, dialect: dialect, opTimeout: opts.OpTimeout}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging %s database: %w", dialect, err)
	}

	if !opts.SkipMigrations {
		if _, err := db.Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
		}
	}

	return db, nil
}

// sqlitePragmas are applied by the driver to every new connection.
var sqlitePragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)"}

// sqliteDSN turns a path (or "file:" URI) into a modernc DSN carrying
// sqlitePragmas, creating the parent directory of a file database.
func sqliteDSN(raw string) (string, error) {
	if raw == ":memory:" {
		return raw, nil
	}

	path, query, _ := strings.Cut(strings.TrimPrefix(raw, "file:"), "?")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("sqlstore: creating database directory %s: %w", dir, err)
		}
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("sqlstore: parsing SQLite DSN parameters: %w", err)
	}
	for _, p := range sqlitePragmas {
		params.Add("_pragma", p)
	}
	return "file:" + path + "?" + params.Encode(), nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect reports which database the store talks to.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks the store is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.opContext(ctx)
	defer cancel()
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlstore: ping: %w", err)
	}
	return nil
}

func (db *DB) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.opTimeout)
}

// rebind rewrites "?" placeholders to "$1, $2, ..." for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
