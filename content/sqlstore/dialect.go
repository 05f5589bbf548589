package sqlstore

import (
	"strconv"
	"strings"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type dialect struct {
	driver  string
	blob    string
	numbers bool // $1 style placeholders
}

func dialectFor(driver string) (*dialect, bool) {
	switch driver {
	case DriverSQLite:
		return &dialect{driver: driver, blob: "BLOB"}, true
	case DriverPostgres:
		return &dialect{driver: driver, blob: "BYTEA", numbers: true}, true
	case DriverMySQL:
		return &dialect{driver: driver, blob: "LONGBLOB"}, true
	}
	return nil, false
}

// rebind rewrites ? placeholders for drivers expecting $N.
func (d *dialect) rebind(query string) string {
	if !d.numbers {
		return query
	}
	var b strings.Builder
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

// insertIgnore builds an insert that silently skips primary key conflicts.
func (d *dialect) insertIgnore(table string, columns ...string) string {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	cols := strings.Join(columns, ", ")
	var query string
	switch d.driver {
	case DriverMySQL:
		query = "INSERT IGNORE INTO " + table + "(" + cols + ") VALUES(" + marks + ")"
	case DriverPostgres:
		query = "INSERT INTO " + table + "(" + cols + ") VALUES(" + marks + ") ON CONFLICT DO NOTHING"
	default:
		query = "INSERT OR IGNORE INTO " + table + "(" + cols + ") VALUES(" + marks + ")"
	}
	return d.rebind(query)
}

func (d *dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sc_content (
            checksum VARCHAR(64) PRIMARY KEY,
            size BIGINT NOT NULL,
            data ` + d.blob + `
        )`,
		`CREATE TABLE IF NOT EXISTS sc_content_ref (
            checksum VARCHAR(64) NOT NULL,
            addr BIGINT NOT NULL,
            PRIMARY KEY (checksum, addr)
        )`,
		`CREATE TABLE IF NOT EXISTS sc_meta (
            name VARCHAR(64) PRIMARY KEY,
            value VARCHAR(255)
        )`,
	}
}

// DetectDriver guesses the database/sql driver from a DSN.
func DetectDriver(dsn string) (string, bool) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", false
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres, true
	case strings.HasPrefix(lower, "mysql://"):
		return DriverMySQL, true
	case strings.HasPrefix(lower, "file:"), lower == ":memory:", strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".db"):
		return DriverSQLite, true
	case strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return DriverMySQL, true
	}
	return "", false
}
