//go:build !linux
// +build !linux

package objectstream

import "os"

// openSegmentFile opens (or creates) the backing append-only file. No
// access-pattern hint is available off Linux.
func openSegmentFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
}
