package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/metrics"
	"github.com/viant/scgraph/segment"
	"github.com/viant/scy/cred/secret"
	"gopkg.in/yaml.v3"
)

// Content backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendBolt     = "bolt"
	BackendBadger   = "badger"
)

// Config defines a graph store process.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Content ContentConfig `yaml:"content"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig defines segment and collection settings.
type StorageConfig struct {
	SegmentSize int `yaml:"segmentSize"`
	MaxSegments int `yaml:"maxSegments"`
	ProbeWindow int `yaml:"probeWindow"`
	ReadyQueue  int `yaml:"readyQueue"`
	// DumpURL is loaded on start and written on close; empty keeps the graph in memory only.
	DumpURL     string        `yaml:"dumpURL"`
	GCInterval  time.Duration `yaml:"gcInterval"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
}

// ContentConfig defines the link content backend.
type ContentConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
	Secret  string `yaml:"secret,omitempty"`
	// SegmentSize is the file backend log rotation size in bytes.
	SegmentSize int64 `yaml:"segmentSize"`
}

// MetricsConfig defines prometheus settings.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// NewLogger returns a logger at the configured level, info when unset.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	if c.Level == "" {
		return logger, nil
	}
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "config: invalid log level %v", c.Level)
	}
	logger.SetLevel(level)
	return logger, nil
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			SegmentSize: segment.DefaultCapacity,
			MaxSegments: 1024,
			ProbeWindow: segment.DefaultProbeWindow,
			ReadyQueue:  8,
			GCInterval:  30 * time.Second,
		},
		Content: ContentConfig{Backend: BackendMemory},
		Metrics: MetricsConfig{Namespace: metrics.DefaultNamespace},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadConfig reads a yaml config; unset fields keep DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	path, err := expandUserPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %v", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %v", path)
	}
	if err := cfg.Expand(context.Background()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Expand resolves ~ and file: paths and merges the DSN secret.
func (c *Config) Expand(ctx context.Context) error {
	var err error
	if c.Storage.DumpURL, err = expandUserPath(c.Storage.DumpURL); err != nil {
		return err
	}
	if c.Content.Path, err = expandUserPath(c.Content.Path); err != nil {
		return err
	}
	if c.Content.DSN, err = expandStoreDSN(c.Content.DSN, c.Content.Backend); err != nil {
		return err
	}
	if c.Content.Secret != "" {
		if c.Content.DSN, err = ExpandDSNWithSecret(ctx, c.Content.DSN, c.Content.Secret); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks limits and backend settings.
func (c *Config) Validate() error {
	if c.Storage.SegmentSize < 0 || c.Storage.SegmentSize > segment.DefaultCapacity {
		return errors.Errorf("config: segmentSize %d out of range (1..%d)", c.Storage.SegmentSize, segment.DefaultCapacity)
	}
	if c.Storage.MaxSegments < 0 || c.Storage.MaxSegments > addr.MaxSegments {
		return errors.Errorf("config: maxSegments %d out of range (1..%d)", c.Storage.MaxSegments, addr.MaxSegments)
	}
	switch c.Content.Backend {
	case "", BackendMemory:
	case BackendFile, BackendBolt, BackendBadger:
		if c.Content.Path == "" {
			return errors.Errorf("config: content backend %v requires path", c.Content.Backend)
		}
	case BackendSQLite:
		if c.Content.DSN == "" && c.Content.Path == "" {
			return errors.Errorf("config: content backend %v requires dsn or path", c.Content.Backend)
		}
	case BackendPostgres, BackendMySQL:
		if c.Content.DSN == "" {
			return errors.Errorf("config: content backend %v requires dsn", c.Content.Backend)
		}
	default:
		return errors.Errorf("config: unsupported content backend %q", c.Content.Backend)
	}
	if _, err := c.Log.NewLogger(); err != nil {
		return err
	}
	return nil
}

func expandUserPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(trimmed, "~/") || trimmed == "~" {
		return filepath.Join(home, strings.TrimPrefix(trimmed, "~")), nil
	}
	// file: URI forms
	if strings.HasPrefix(trimmed, "file:") {
		prefix := "file://localhost"
		rest := strings.TrimPrefix(trimmed, prefix)
		if rest == trimmed {
			prefix = "file://"
			rest = strings.TrimPrefix(trimmed, prefix)
		}
		if rest == trimmed {
			prefix = "file:"
			rest = strings.TrimPrefix(trimmed, prefix)
		}
		rest = strings.TrimLeft(rest, "/")
		if strings.HasPrefix(rest, "~") {
			abs := filepath.ToSlash(filepath.Join(home, strings.TrimPrefix(rest, "~")))
			return prefix + "/" + strings.TrimLeft(abs, "/"), nil
		}
		return path, nil
	}
	if trimmed[0] != '~' {
		return path, nil
	}
	return "", errors.Errorf("config: unsupported ~user path: %s", path)
}

func expandStoreDSN(dsn, backend string) (string, error) {
	if dsn == "" {
		return dsn, nil
	}
	if backend == BackendSQLite || dsn[0] == '~' || dsn[0] == '/' || strings.HasPrefix(dsn, "file:") {
		return expandUserPath(dsn)
	}
	return dsn, nil
}

// ExpandDSNWithSecret loads a secret and expands placeholders in the DSN.
func ExpandDSNWithSecret(ctx context.Context, dsn, secretRef string) (string, error) {
	secretRef = strings.TrimSpace(secretRef)
	if secretRef == "" {
		return dsn, nil
	}
	if strings.TrimSpace(dsn) == "" {
		return "", errors.Errorf("secret %q provided but dsn is empty", secretRef)
	}
	sec, err := secret.New().Lookup(ctx, secret.Resource(secretRef))
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up secret %v", secretRef)
	}
	return sec.Expand(dsn), nil
}
