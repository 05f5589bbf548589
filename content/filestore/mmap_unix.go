//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris || aix

package filestore

import (
	"golang.org/x/sys/unix"
)

// remap maps the segment file into memory read-only. If mapping fails, it is a no-op.
func (seg *segment) remap() error {
	seg.unmap()
	if seg.size == 0 || seg.f == nil {
		return nil
	}
	b, err := unix.Mmap(int(seg.f.Fd()), 0, int(seg.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// reads use ReadAt
		return nil
	}
	seg.data = b
	return nil
}

func (seg *segment) unmap() {
	if seg.data != nil {
		_ = unix.Munmap(seg.data)
		seg.data = nil
	}
}
