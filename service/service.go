package service

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/metrics"
	"github.com/viant/scgraph/storage"
)

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger shared by storage and content backends.
// Without it the service logs at the configured log level.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithContentStore uses an already opened content backend instead of the
// configured one. The service closes it on Close.
func WithContentStore(store content.Store) Option {
	return func(s *Service) { s.content = store }
}

// WithReadOnly skips the directory lock and the save on Close.
func WithReadOnly() Option {
	return func(s *Service) { s.readOnly = true }
}

// Service owns a storage together with its bus, content backend, metrics
// and directory lock.
type Service struct {
	cfg     *Config
	logger  logrus.FieldLogger
	storage *storage.Storage
	bus     *event.Bus
	content content.Store
	metrics *metrics.Collector
	lock    *storage.DirLock

	readOnly bool

	closeOnce sync.Once
	closeErr  error
}

// Info summarises storage and content state.
type Info struct {
	Storage storage.Stats  `json:"storage"`
	Content *content.Stats `json:"content,omitempty"`
	DumpURL string         `json:"dumpURL,omitempty"`
	Backend string         `json:"backend"`
}

// New opens the configured content backend, locks the dump directory and
// loads the dump when it exists.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		logger, err := cfg.Log.NewLogger()
		if err != nil {
			return nil, err
		}
		s.logger = logger
	}
	if dir := localDir(cfg.Storage.DumpURL); dir != "" && !s.readOnly {
		lock, err := storage.LockDir(dir, cfg.Storage.LockTimeout)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to lock %v", dir)
		}
		s.lock = lock
	}
	if s.content == nil {
		store, err := OpenContent(ctx, cfg.Content, s.logger)
		if err != nil {
			s.release()
			return nil, err
		}
		s.content = store
	}
	s.metrics = metrics.New(cfg.Metrics.Namespace)
	s.bus = event.New()
	s.bus.SetObserver(s.metrics)
	if err := s.openStorage(ctx); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

func (s *Service) openStorage(ctx context.Context) error {
	cfg := s.cfg.Storage
	opts := []storage.Option{
		storage.WithLogger(s.logger),
		storage.WithBus(s.bus),
		storage.WithContentStore(s.content),
		storage.WithMetrics(s.metrics),
		storage.WithSegmentSize(cfg.SegmentSize),
		storage.WithMaxSegments(cfg.MaxSegments),
		storage.WithProbeWindow(cfg.ProbeWindow),
		storage.WithReadyQueue(cfg.ReadyQueue),
		storage.WithGCInterval(cfg.GCInterval),
	}
	if cfg.DumpURL != "" {
		exists, err := afs.New().Exists(ctx, cfg.DumpURL)
		if err != nil {
			return errors.Wrapf(err, "failed to check %v", cfg.DumpURL)
		}
		if exists {
			loaded, err := storage.Load(ctx, cfg.DumpURL, opts...)
			if err != nil {
				return err
			}
			s.storage = loaded
			return nil
		}
	}
	s.storage = storage.New(opts...)
	return nil
}

// Storage returns the graph store.
func (s *Service) Storage() *storage.Storage { return s.storage }

// Bus returns the event bus.
func (s *Service) Bus() *event.Bus { return s.bus }

// Content returns the link content backend.
func (s *Service) Content() content.Store { return s.content }

// Metrics returns the prometheus collector.
func (s *Service) Metrics() *metrics.Collector { return s.metrics }

// Config returns the service configuration.
func (s *Service) Config() *Config { return s.cfg }

// Info returns storage and content statistics.
func (s *Service) Info() Info {
	ret := Info{Storage: s.storage.Stats(), DumpURL: s.cfg.Storage.DumpURL, Backend: backendName(s.cfg.Content.Backend)}
	if provider, ok := s.content.(content.StatsProvider); ok {
		stats := provider.Stats()
		ret.Content = &stats
	}
	return ret
}

// Save writes the dump; it is a no-op without a dump URL or when read only.
func (s *Service) Save(ctx context.Context) error {
	if s.cfg.Storage.DumpURL == "" || s.readOnly {
		return nil
	}
	return s.storage.Save(ctx, s.cfg.Storage.DumpURL)
}

// Close saves the dump, then releases storage, content backend and lock.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Save(ctx)
		if err := s.storage.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		if err := s.release(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// release closes the content backend and the directory lock.
func (s *Service) release() error {
	var err error
	if s.content != nil {
		err = s.content.Close()
	}
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// localDir returns the directory of a local dump URL, or "" for remote or
// empty URLs.
func localDir(URL string) string {
	if URL == "" || url.Scheme(URL, file.Scheme) != file.Scheme {
		return ""
	}
	return filepath.Dir(url.Path(URL))
}
