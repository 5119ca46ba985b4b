//go:build linux
// +build linux

package objectstream

import (
	"os"

	"golang.org/x/sys/unix"
)

// openSegmentFile opens (or creates) the backing append-only file and hints
// sequential access, matching the reference handler's Linux write path.
func openSegmentFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	return f, nil
}
