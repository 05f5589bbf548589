package storage

import (
	"github.com/minio/highwayhash"
)

var dumpKey = []byte("scgraph-segment-dump-checksum-k1")

// dumpChecksum hashes a segment dump body.
func dumpChecksum(data []byte) (uint64, error) {
	h, err := highwayhash.New64(dumpKey)
	if err != nil {
		return 0, err
	}
	if _, err = h.Write(data); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
