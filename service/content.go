package service

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/content/badgerstore"
	"github.com/viant/scgraph/content/boltstore"
	"github.com/viant/scgraph/content/filestore"
	"github.com/viant/scgraph/content/memstore"
	"github.com/viant/scgraph/content/sqlstore"
)

const sqliteFileName = "content.db"

// OpenContent opens the link content backend selected by cfg.
func OpenContent(ctx context.Context, cfg ContentConfig, logger logrus.FieldLogger) (content.Store, error) {
	var (
		store content.Store
		err   error
	)
	switch cfg.Backend {
	case "", BackendMemory:
		store = memstore.New()
	case BackendFile:
		store, err = filestore.Open(filestore.Options{BasePath: cfg.Path, SegmentSize: cfg.SegmentSize})
	case BackendBolt:
		store, err = boltstore.Open(cfg.Path)
	case BackendBadger:
		badgerCfg := badgerstore.DefaultConfig()
		badgerCfg.Path = cfg.Path
		badgerCfg.Logger = logger
		store, err = badgerstore.Open(badgerCfg)
	case BackendSQLite, BackendPostgres, BackendMySQL:
		dsn := cfg.DSN
		if dsn == "" {
			if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
				return nil, errors.Wrap(err, "failed to create content directory")
			}
			dsn = filepath.Join(cfg.Path, sqliteFileName)
		}
		store, err = sqlstore.Open(ctx, sqlstore.Options{Driver: cfg.Backend, DSN: dsn})
	default:
		return nil, errors.Errorf("unsupported content backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %v content backend", cfg.Backend)
	}
	logger.WithField("backend", backendName(cfg.Backend)).Debug("content backend opened")
	return store, nil
}

func backendName(backend string) string {
	if backend == "" {
		return BackendMemory
	}
	return backend
}
