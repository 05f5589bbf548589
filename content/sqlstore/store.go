// Package sqlstore keeps the link content dictionary in a SQL database.
//
// SQLite (pure Go) is the default; PostgreSQL and MySQL are supported for
// deployments sharing a content dictionary across hosts.
package sqlstore

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/db/sqliteutil"
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

const schemaVersion = "1"

// Options configures the store.
type Options struct {
	// Driver is one of sqlite, postgres, mysql; detected from DSN when empty.
	Driver string
	DSN    string
	// Pragmas apply to SQLite only.
	Pragmas *sqliteutil.Pragmas
}

// Store implements content.Store with database/sql.
type Store struct {
	db      *sql.DB
	dialect *dialect
	closed  atomic.Bool
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		detected, ok := DetectDriver(opts.DSN)
		if !ok {
			return nil, errors.New("sqlstore: unable to detect driver from dsn")
		}
		driver = detected
	}
	d, ok := dialectFor(driver)
	if !ok {
		return nil, errors.Errorf("sqlstore: unsupported driver %q", driver)
	}
	dsn := opts.DSN
	switch driver {
	case DriverSQLite:
		pragmas := sqliteutil.DefaultPragmas
		if opts.Pragmas != nil {
			pragmas = *opts.Pragmas
		}
		dsn = pragmas.Apply(sqliteutil.FileDSN(dsn))
	case DriverMySQL:
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: open %s", driver)
	}
	if driver == DriverSQLite {
		// single writer connection avoids SQLITE_BUSY inside transactions
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, dialect: d}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates required tables and seeds meta if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlstore: begin schema")
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range s.dialect.schema() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "sqlstore: create schema")
		}
	}
	if _, err := tx.ExecContext(ctx, s.dialect.insertIgnore("sc_meta", "name", "value"), "schema_version", schemaVersion); err != nil {
		return errors.Wrap(err, "sqlstore: seed meta")
	}
	return tx.Commit()
}

func (s *Store) q(query string) string { return s.dialect.rebind(query) }

// Write implements content.Store.Write.
func (s *Store) Write(ctx context.Context, checksum content.Checksum, r io.Reader) error {
	data, err := content.VerifiedPayload(checksum, r)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return content.ErrClosed
	}
	key := checksum.String()
	if data == nil {
		data = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.insertIgnore("sc_content", "checksum", "size", "data"), key, len(data), data); err != nil {
		return errors.Wrap(err, "sqlstore: insert payload")
	}
	var existing []byte
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT data FROM sc_content WHERE checksum = ?`), key).Scan(&existing); err != nil {
		return errors.Wrap(err, "sqlstore: verify payload")
	}
	return content.SamePayload(existing, data)
}

// Read implements content.Store.Read.
func (s *Store) Read(ctx context.Context, checksum content.Checksum) (io.ReadCloser, error) {
	if s.closed.Load() {
		return nil, content.ErrClosed
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, s.q(`SELECT data FROM sc_content WHERE checksum = ?`), checksum.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, content.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: read payload")
	}
	return content.ReadCloser(data), nil
}

// AddReference implements content.Store.AddReference.
func (s *Store) AddReference(ctx context.Context, a addr.Addr, checksum content.Checksum) error {
	if s.closed.Load() {
		return content.ErrClosed
	}
	key := checksum.String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlstore: begin")
	}
	defer func() { _ = tx.Rollback() }()
	var one int
	err = tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM sc_content WHERE checksum = ?`), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return content.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "sqlstore: lookup payload")
	}
	if _, err := tx.ExecContext(ctx, s.dialect.insertIgnore("sc_content_ref", "checksum", "addr"), key, int64(a.Hash())); err != nil {
		return errors.Wrap(err, "sqlstore: insert reference")
	}
	return tx.Commit()
}

// RemoveReference implements content.Store.RemoveReference.
func (s *Store) RemoveReference(ctx context.Context, a addr.Addr, checksum content.Checksum) error {
	if s.closed.Load() {
		return content.ErrClosed
	}
	key := checksum.String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlstore: begin")
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM sc_content_ref WHERE checksum = ? AND addr = ?`), key, int64(a.Hash())); err != nil {
		return errors.Wrap(err, "sqlstore: delete reference")
	}
	var refs int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM sc_content_ref WHERE checksum = ?`), key).Scan(&refs); err != nil {
		return errors.Wrap(err, "sqlstore: count references")
	}
	if refs == 0 {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM sc_content WHERE checksum = ?`), key); err != nil {
			return errors.Wrap(err, "sqlstore: delete payload")
		}
	}
	return tx.Commit()
}

// FindByChecksum implements content.Store.FindByChecksum.
func (s *Store) FindByChecksum(ctx context.Context, checksum content.Checksum) ([]addr.Addr, error) {
	if s.closed.Load() {
		return nil, content.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT addr FROM sc_content_ref WHERE checksum = ? ORDER BY addr`), checksum.String())
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: find references")
	}
	defer rows.Close()
	var ret []addr.Addr
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ret = append(ret, addr.Addr(uint32(v)))
	}
	return ret, rows.Err()
}

// Stats returns best-effort counters; query failures yield zero values.
func (s *Store) Stats() content.Stats {
	var ret content.Stats
	if s.closed.Load() {
		return ret
	}
	ctx := context.Background()
	var bytes sql.NullInt64
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(size) FROM sc_content`).Scan(&ret.Payloads, &bytes)
	ret.Bytes = uint64(bytes.Int64)
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sc_content_ref`).Scan(&ret.References)
	return ret
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

var _ content.Store = (*Store)(nil)
var _ content.StatsProvider = (*Store)(nil)
