//go:build unix

package ingest

import (
	"errors"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sys/unix"
)

var errNoDescriptor = errors.New("file has no descriptor")

// mapFile maps an OS-backed billy file read-only. Files from in-memory
// filesystems have no descriptor and are rejected.
func mapFile(f billy.File, size int64) ([]byte, func() error, error) {
	fd, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return nil, nil, errNoDescriptor
	}
	data, err := unix.Mmap(int(fd.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
