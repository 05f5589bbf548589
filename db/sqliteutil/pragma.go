// Package sqliteutil holds DSN helpers for the pure-Go SQLite driver.
package sqliteutil

import (
	"fmt"
	"strings"
)

// Pragmas lists connection pragmas appended to a SQLite DSN.
type Pragmas struct {
	WAL           bool
	BusyTimeoutMS int
	// Synchronous is one of OFF, NORMAL, FULL; empty leaves the driver default.
	Synchronous string
}

// DefaultPragmas is used by the content dictionary.
var DefaultPragmas = Pragmas{WAL: true, BusyTimeoutMS: 5000, Synchronous: "NORMAL"}

// IsMemory reports whether dsn names an in-memory database.
func IsMemory(dsn string) bool {
	lower := strings.ToLower(dsn)
	return dsn == ":memory:" || strings.HasPrefix(lower, "file::memory:") || strings.Contains(lower, "mode=memory")
}

// FileDSN turns a plain path into a file: DSN; DSNs are returned unchanged.
func FileDSN(path string) string {
	if strings.HasPrefix(path, "file:") || IsMemory(path) {
		return path
	}
	return "file:" + path
}

// Apply appends pragmas to dsn when missing. It is a no-op for in-memory databases.
func (p Pragmas) Apply(dsn string) string {
	if dsn == "" || IsMemory(dsn) {
		return dsn
	}
	lower := strings.ToLower(dsn)
	if p.WAL && !strings.Contains(lower, "_pragma=journal_mode") {
		dsn = addPragma(dsn, "journal_mode(WAL)")
	}
	if p.BusyTimeoutMS > 0 && !strings.Contains(lower, "_pragma=busy_timeout") {
		dsn = addPragma(dsn, fmt.Sprintf("busy_timeout(%d)", p.BusyTimeoutMS))
	}
	if p.Synchronous != "" && !strings.Contains(lower, "_pragma=synchronous") {
		dsn = addPragma(dsn, "synchronous("+strings.ToUpper(p.Synchronous)+")")
	}
	return dsn
}

func addPragma(dsn, pragma string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=" + pragma
}
