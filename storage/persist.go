package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/bintly"
	"github.com/viant/scgraph/element"
	"github.com/viant/scgraph/segment"
	"golang.org/x/sync/errgroup"
)

// Dump layout (little endian):
//
//	header: magic[4] version:u16 reserved:u16 segmentSize:u32 segments:u32 clock:u64 checksum:u64
//	body:   per segment [blockLen:u32][block], block = bintly {id:u16 slots:u32 elements...}
//
// checksum is the highwayhash-64 of the body.
const (
	dumpMagic      = "SCGS"
	dumpVersion    = 1
	dumpHeaderSize = 32
)

type dumpHeader struct {
	Version     uint16
	SegmentSize uint32
	Segments    uint32
	Clock       uint64
	Checksum    uint64
}

func (h *dumpHeader) encode() []byte {
	buf := make([]byte, dumpHeaderSize)
	copy(buf, dumpMagic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.SegmentSize)
	binary.LittleEndian.PutUint32(buf[12:], h.Segments)
	binary.LittleEndian.PutUint64(buf[16:], h.Clock)
	binary.LittleEndian.PutUint64(buf[24:], h.Checksum)
	return buf
}

func decodeHeader(data []byte) (*dumpHeader, error) {
	if len(data) < dumpHeaderSize || string(data[:4]) != dumpMagic {
		return nil, errors.Wrap(ErrCorrupt, "not a segment dump")
	}
	h := &dumpHeader{
		Version:     binary.LittleEndian.Uint16(data[4:]),
		SegmentSize: binary.LittleEndian.Uint32(data[8:]),
		Segments:    binary.LittleEndian.Uint32(data[12:]),
		Clock:       binary.LittleEndian.Uint64(data[16:]),
		Checksum:    binary.LittleEndian.Uint64(data[24:]),
	}
	if h.Version != dumpVersion {
		return nil, errors.Wrapf(ErrCorrupt, "unsupported dump version %d", h.Version)
	}
	return h, nil
}

var (
	writers = bintly.NewWriters()
	readers = bintly.NewReaders()
)

// Save writes every segment to URL. Collectable elements are reclaimed
// first; the dump is uploaded under a temporary name and moved into place.
func (s *Storage) Save(ctx context.Context, URL string) error {
	started := time.Now()
	s.CollectGarbage()
	s.graph.RLock()
	segments := s.segmentList()
	snapshots := make([][]element.Element, len(segments))
	for i, seg := range segments {
		snapshots[i] = seg.Snapshot()
	}
	clock := s.clock.Load()
	s.graph.RUnlock()

	blocks := make([][]byte, len(segments))
	g, _ := errgroup.WithContext(ctx)
	for i := range segments {
		i := i
		g.Go(func() error {
			block, err := encodeBlock(segments[i].ID(), snapshots[i])
			blocks[i] = block
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	var body bytes.Buffer
	for _, block := range blocks {
		var size [4]byte
		binary.LittleEndian.PutUint32(size[:], uint32(len(block)))
		body.Write(size[:])
		body.Write(block)
	}
	sum, err := dumpChecksum(body.Bytes())
	if err != nil {
		return err
	}
	header := dumpHeader{Version: dumpVersion, SegmentSize: uint32(s.segmentSize), Segments: uint32(len(segments)), Clock: clock, Checksum: sum}
	data := append(header.encode(), body.Bytes()...)
	if err := upload(ctx, URL, data); err != nil {
		return err
	}
	s.logger.WithField("path", URL).WithField("segment", len(segments)).
		WithField("elapsed", time.Since(started).String()).Info("segments saved")
	return nil
}

func encodeBlock(id uint16, slots []element.Element) ([]byte, error) {
	w := writers.Get()
	defer writers.Put(w)
	w.Uint16(id)
	w.Uint32(uint32(len(slots)))
	for i := range slots {
		if err := slots[i].EncodeBinary(w); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), w.Bytes()...), nil
}

func decodeBlock(block []byte) (uint16, []element.Element, error) {
	r := readers.Get()
	defer readers.Put(r)
	if err := r.FromBytes(block); err != nil {
		return 0, nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	var id uint16
	var count uint32
	r.Uint16(&id)
	r.Uint32(&count)
	if count > segment.DefaultCapacity {
		return 0, nil, errors.Wrapf(ErrCorrupt, "segment %d: %d slots", id, count)
	}
	slots := make([]element.Element, count)
	for i := range slots {
		if err := slots[i].DecodeBinary(r); err != nil {
			return 0, nil, errors.Wrap(ErrCorrupt, err.Error())
		}
	}
	return id, slots, nil
}

// upload writes data to a temporary URL and moves it over URL.
func upload(ctx context.Context, URL string, data []byte) error {
	fs := afs.New()
	tmp := URL + ".tmp"
	if err := fs.Upload(ctx, tmp, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "failed to upload %v", tmp)
	}
	if err := fs.Move(ctx, tmp, URL); err == nil {
		return nil
	}
	// move failed: write the target directly
	if err := fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		_ = fs.Delete(ctx, tmp)
		return errors.Wrapf(err, "failed to upload %v", URL)
	}
	_ = fs.Delete(ctx, tmp)
	return nil
}

// Load restores a storage saved with Save. Options apply as in New; the
// segment size is taken from the dump.
func Load(ctx context.Context, URL string, opts ...Option) (*Storage, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download %v", URL)
	}
	s, err := Decode(data, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %v", URL)
	}
	s.logger.WithField("path", URL).WithField("segment", len(s.segments)).Info("segments loaded")
	return s, nil
}

// Decode restores a storage from dump bytes.
func Decode(data []byte, opts ...Option) (*Storage, error) {
	header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[dumpHeaderSize:]
	sum, err := dumpChecksum(body)
	if err != nil {
		return nil, err
	}
	if sum != header.Checksum {
		return nil, errors.Wrap(ErrCorrupt, "checksum mismatch")
	}
	opts = append(opts, WithSegmentSize(int(header.SegmentSize)))
	s := New(opts...)
	segments := make([]*segment.Segment, 0, header.Segments)
	for i := uint32(0); i < header.Segments; i++ {
		if len(body) < 4 {
			_ = s.Close()
			return nil, errors.Wrap(ErrCorrupt, "truncated block size")
		}
		size := binary.LittleEndian.Uint32(body)
		body = body[4:]
		if uint32(len(body)) < size {
			_ = s.Close()
			return nil, errors.Wrap(ErrCorrupt, "truncated block")
		}
		id, slots, err := decodeBlock(body[:size])
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		body = body[size:]
		if int(id) != len(segments)+1 {
			_ = s.Close()
			return nil, errors.Wrapf(ErrCorrupt, "unexpected segment id %d", id)
		}
		seg, err := segment.Restore(id, s.segmentSize, s.probeWindow, slots)
		if err != nil {
			_ = s.Close()
			return nil, errors.Wrap(ErrCorrupt, err.Error())
		}
		segments = append(segments, seg)
	}
	s.segMu.Lock()
	s.segments = segments
	s.segMu.Unlock()
	for _, seg := range segments {
		if seg.HasFreeSlot() {
			s.pushReady(seg.ID())
		}
	}
	if header.Clock > 0 {
		s.clock.Store(header.Clock)
	}
	s.metrics.OnSegments(len(segments))
	return s, nil
}
