//go:build windows

package filestore

// Reads fall back to ReadAt on Windows.

func (seg *segment) remap() error {
	seg.data = nil
	return nil
}

func (seg *segment) unmap() {}
