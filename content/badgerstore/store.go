// Package badgerstore keeps the link content dictionary in BadgerDB.
package badgerstore

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
)

const (
	payloadVersion = 0x01
	maxRetries     = 8
)

var (
	payloadPrefix = []byte("p/") // p/<checksum> = <version><data>
	refPrefix     = []byte("r/") // r/<checksum><addr> = ""
)

// Store implements content.Store on top of BadgerDB.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	closed atomic.Bool
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.Wrapf(err, "badgerstore: create directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger.WithField("component", "badger"))
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "badgerstore: open")
	}
	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		logger := cfg.Logger
		if logger == nil {
			logger = logrus.StandardLogger()
		}
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

func payloadKey(checksum content.Checksum) []byte {
	return append(append([]byte{}, payloadPrefix...), checksum[:]...)
}

func refsPrefix(checksum content.Checksum) []byte {
	return append(append([]byte{}, refPrefix...), checksum[:]...)
}

func refKey(checksum content.Checksum, a addr.Addr) []byte {
	return binary.BigEndian.AppendUint32(refsPrefix(checksum), a.Hash())
}

// update retries fn on optimistic transaction conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = s.db.Update(fn); !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Write implements content.Store.Write.
func (s *Store) Write(ctx context.Context, checksum content.Checksum, r io.Reader) error {
	data, err := content.VerifiedPayload(checksum, r)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return content.ErrClosed
	}
	key := payloadKey(checksum)
	return s.update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == nil {
			existing, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			return content.SamePayload(existing[1:], data)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value := make([]byte, 1+len(data))
		value[0] = payloadVersion
		copy(value[1:], data)
		return txn.Set(key, value)
	})
}

// Read implements content.Store.Read.
func (s *Store) Read(ctx context.Context, checksum content.Checksum) (io.ReadCloser, error) {
	if s.closed.Load() {
		return nil, content.ErrClosed
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(payloadKey(checksum))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return content.ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		data = value[1:]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content.ReadCloser(data), nil
}

// AddReference implements content.Store.AddReference.
func (s *Store) AddReference(ctx context.Context, a addr.Addr, checksum content.Checksum) error {
	if s.closed.Load() {
		return content.ErrClosed
	}
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(payloadKey(checksum)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return content.ErrNotFound
			}
			return err
		}
		return txn.Set(refKey(checksum, a), []byte{})
	})
}

// RemoveReference implements content.Store.RemoveReference.
func (s *Store) RemoveReference(ctx context.Context, a addr.Addr, checksum content.Checksum) error {
	if s.closed.Load() {
		return content.ErrClosed
	}
	return s.update(func(txn *badger.Txn) error {
		if err := txn.Delete(refKey(checksum, a)); err != nil {
			return err
		}
		prefix := refsPrefix(checksum)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		it.Seek(prefix)
		remaining := it.ValidForPrefix(prefix)
		it.Close()
		if remaining {
			return nil
		}
		return txn.Delete(payloadKey(checksum))
	})
}

// FindByChecksum implements content.Store.FindByChecksum.
func (s *Store) FindByChecksum(ctx context.Context, checksum content.Checksum) ([]addr.Addr, error) {
	if s.closed.Load() {
		return nil, content.ErrClosed
	}
	var ret []addr.Addr
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := refsPrefix(checksum)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ret = append(ret, addr.Addr(binary.BigEndian.Uint32(key[len(prefix):])))
		}
		return nil
	})
	return ret, err
}

// Stats scans both key spaces.
func (s *Store) Stats() content.Stats {
	var ret content.Stats
	if s.closed.Load() {
		return ret
	}
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(payloadPrefix); it.ValidForPrefix(payloadPrefix); it.Next() {
			ret.Payloads++
			ret.Bytes += uint64(it.Item().ValueSize() - 1)
		}
		for it.Seek(refPrefix); it.ValidForPrefix(refPrefix); it.Next() {
			ret.References++
		}
		return nil
	})
	return ret
}

// Close stops the GC runner and closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

var _ content.Store = (*Store)(nil)
var _ content.StatsProvider = (*Store)(nil)
