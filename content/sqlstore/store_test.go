package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/content/contenttest"
)

func TestStore_SQLite(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, dir string) content.Store {
		s, err := Open(context.Background(), Options{DSN: filepath.Join(dir, "content.db")})
		require.NoError(t, err)
		return s
	}, contenttest.Options{Persistent: true})
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "stats.db")})
	require.NoError(t, err)
	defer s.Close()
	sum := content.Sum([]byte("abc"))
	require.NoError(t, s.Write(ctx, sum, content.ReadCloser([]byte("abc"))))
	assert.Equal(t, content.Stats{Payloads: 1, Bytes: 3}, s.Stats())
	// schema creation is idempotent
	assert.NoError(t, s.EnsureSchema(ctx))
}

func TestDetectDriver(t *testing.T) {
	var testCases = []struct {
		dsn    string
		expect string
		ok     bool
	}{
		{dsn: "postgres://u:p@localhost/db", expect: DriverPostgres, ok: true},
		{dsn: "mysql://u:p@tcp(localhost)/db", expect: DriverMySQL, ok: true},
		{dsn: "u:p@tcp(localhost:3306)/db", expect: DriverMySQL, ok: true},
		{dsn: "/tmp/content.db", expect: DriverSQLite, ok: true},
		{dsn: "file:x?mode=memory", expect: DriverSQLite, ok: true},
		{dsn: "", ok: false},
		{dsn: "redis://localhost", ok: false},
	}
	for _, testCase := range testCases {
		driver, ok := DetectDriver(testCase.dsn)
		assert.Equal(t, testCase.ok, ok, testCase.dsn)
		assert.Equal(t, testCase.expect, driver, testCase.dsn)
	}
}

func TestDialect(t *testing.T) {
	pg, _ := dialectFor(DriverPostgres)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "INSERT INTO t(a, b) VALUES($1,$2) ON CONFLICT DO NOTHING", pg.insertIgnore("t", "a", "b"))
	my, _ := dialectFor(DriverMySQL)
	assert.Equal(t, "INSERT IGNORE INTO t(a) VALUES(?)", my.insertIgnore("t", "a"))
	lite, _ := dialectFor(DriverSQLite)
	assert.Equal(t, "INSERT OR IGNORE INTO t(a, b) VALUES(?,?)", lite.insertIgnore("t", "a", "b"))
	_, ok := dialectFor("oracle")
	assert.False(t, ok)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, Options{DSN: "redis://localhost"})
	assert.EqualError(t, err, "sqlstore: unable to detect driver from dsn")
	_, err = Open(ctx, Options{Driver: "oracle", DSN: "x"})
	assert.EqualError(t, err, `sqlstore: unsupported driver "oracle"`)
}
