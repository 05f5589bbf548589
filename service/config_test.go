package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "scgraph.yaml")
	data := `
storage:
  segmentSize: 1024
  dumpURL: ` + filepath.Join(dir, "segments.scg") + `
  gcInterval: 5s
content:
  backend: file
  path: ~/scgraph-content
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Storage.SegmentSize)
	assert.Equal(t, 1024, cfg.Storage.MaxSegments)
	assert.Equal(t, 5*time.Second, cfg.Storage.GCInterval)
	assert.Equal(t, filepath.Join(dir, "segments.scg"), cfg.Storage.DumpURL)
	assert.Equal(t, BackendFile, cfg.Content.Backend)
	assert.Equal(t, filepath.Join(home, "scgraph-content"), cfg.Content.Path)
	assert.Equal(t, "scgraph", cfg.Metrics.Namespace)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("content:\n  backend: cassandra\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		mutate      func(cfg *Config)
		valid       bool
	}{
		{description: "default", mutate: func(cfg *Config) {}, valid: true},
		{description: "segment too large", mutate: func(cfg *Config) { cfg.Storage.SegmentSize = 1 << 17 }},
		{description: "too many segments", mutate: func(cfg *Config) { cfg.Storage.MaxSegments = 1 << 16 }},
		{description: "file without path", mutate: func(cfg *Config) { cfg.Content.Backend = BackendFile }},
		{description: "badger with path", mutate: func(cfg *Config) { cfg.Content.Backend, cfg.Content.Path = BackendBadger, "/tmp/x" }, valid: true},
		{description: "postgres without dsn", mutate: func(cfg *Config) { cfg.Content.Backend = BackendPostgres }},
		{description: "sqlite with path", mutate: func(cfg *Config) { cfg.Content.Backend, cfg.Content.Path = BackendSQLite, "/tmp/x" }, valid: true},
		{description: "unknown backend", mutate: func(cfg *Config) { cfg.Content.Backend = "etcd" }},
		{description: "unknown log level", mutate: func(cfg *Config) { cfg.Log.Level = "loud" }},
	}
	for _, testCase := range testCases {
		cfg := DefaultConfig()
		testCase.mutate(cfg)
		err := cfg.Validate()
		if testCase.valid {
			assert.NoError(t, err, testCase.description)
			continue
		}
		assert.Error(t, err, testCase.description)
	}
}

func TestExpandUserPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	slashHome := filepath.ToSlash(home)
	var testCases = []struct {
		description string
		input       string
		expect      string
		hasError    bool
	}{
		{description: "empty", input: "", expect: ""},
		{description: "absolute", input: "/var/lib/scgraph", expect: "/var/lib/scgraph"},
		{description: "home", input: "~/graph", expect: filepath.Join(home, "graph")},
		{description: "file url with home", input: "file://~/graph", expect: "file:///" + trimSlash(slashHome) + "/graph"},
		{description: "file url absolute", input: "file:///var/graph", expect: "file:///var/graph"},
		{description: "other user", input: "~bob/graph", hasError: true},
	}
	for _, testCase := range testCases {
		actual, err := expandUserPath(testCase.input)
		if testCase.hasError {
			assert.Error(t, err, testCase.description)
			continue
		}
		assert.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, actual, testCase.description)
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}
