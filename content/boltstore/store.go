// Package boltstore keeps the link content dictionary in a bbolt file.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	bolt "go.etcd.io/bbolt"
)

const databaseFileName = "content.db"

// payload values carry a one byte version prefix so that empty payloads
// stay distinguishable from missing keys.
const payloadVersion = 0x01

// Bucket names
var (
	payloadsBucketName = []byte("payloads") // <checksum>=<version><data>
	refsBucketName     = []byte("refs")     // <checksum><addr>=""
)

// Store implements content.Store on top of bbolt.
type Store struct {
	db     *bolt.DB
	closed atomic.Bool
}

// Open creates a new or opens an existing database under rootDir.
func Open(rootDir string) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "boltstore: mkdir")
	}
	db, err := bolt.Open(filepath.Join(rootDir, databaseFileName), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore: open")
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	return s, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(payloadsBucketName); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(refsBucketName); err != nil {
			return err
		}
		return nil
	})
}

func refKey(checksum content.Checksum, a addr.Addr) []byte {
	key := make([]byte, content.ChecksumSize+4)
	copy(key, checksum[:])
	binary.BigEndian.PutUint32(key[content.ChecksumSize:], a.Hash())
	return key
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
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(payloadsBucketName)
		if existing := bucket.Get(checksum[:]); existing != nil {
			return content.SamePayload(existing[1:], data)
		}
		value := make([]byte, 1+len(data))
		value[0] = payloadVersion
		copy(value[1:], data)
		return bucket.Put(checksum[:], value)
	})
}

// Read implements content.Store.Read.
func (s *Store) Read(ctx context.Context, checksum content.Checksum) (io.ReadCloser, error) {
	if s.closed.Load() {
		return nil, content.ErrClosed
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(payloadsBucketName).Get(checksum[:])
		if value == nil {
			return content.ErrNotFound
		}
		// values are only valid for the life of the transaction
		data = append([]byte(nil), value[1:]...)
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
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(payloadsBucketName).Get(checksum[:]) == nil {
			return content.ErrNotFound
		}
		return tx.Bucket(refsBucketName).Put(refKey(checksum, a), []byte{})
	})
}

// RemoveReference implements content.Store.RemoveReference.
func (s *Store) RemoveReference(ctx context.Context, a addr.Addr, checksum content.Checksum) error {
	if s.closed.Load() {
		return content.ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		refs := tx.Bucket(refsBucketName)
		if err := refs.Delete(refKey(checksum, a)); err != nil {
			return errors.Wrapf(err, "failed to delete reference %v", a)
		}
		k, _ := refs.Cursor().Seek(checksum[:])
		if k != nil && bytes.HasPrefix(k, checksum[:]) {
			return nil
		}
		return tx.Bucket(payloadsBucketName).Delete(checksum[:])
	})
}

// FindByChecksum implements content.Store.FindByChecksum.
func (s *Store) FindByChecksum(ctx context.Context, checksum content.Checksum) ([]addr.Addr, error) {
	if s.closed.Load() {
		return nil, content.ErrClosed
	}
	var ret []addr.Addr
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(refsBucketName).Cursor()
		prefix := checksum[:]
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ret = append(ret, addr.Addr(binary.BigEndian.Uint32(k[content.ChecksumSize:])))
		}
		return nil
	})
	return ret, err
}

// Stats walks both buckets.
func (s *Store) Stats() content.Stats {
	var ret content.Stats
	if s.closed.Load() {
		return ret
	}
	_ = s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(payloadsBucketName).ForEach(func(_, v []byte) error {
			ret.Payloads++
			ret.Bytes += uint64(len(v) - 1)
			return nil
		}); err != nil {
			return err
		}
		ret.References = tx.Bucket(refsBucketName).Stats().KeyN
		return nil
	})
	return ret
}

// Close closes the database file.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

var _ content.Store = (*Store)(nil)
var _ content.StatsProvider = (*Store)(nil)
