package objectstream

import "golang.org/x/exp/mmap"

// openMMap opens a fresh read-only mmap view of path, mirroring the
// reference handler's open-per-read-call pattern rather than caching a
// long-lived mapping across appends.
func openMMap(path string) (*mmap.ReaderAt, error) {
	return mmap.Open(path)
}
