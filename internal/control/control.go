// Package control publishes the active dataset generation through a
// memory-mapped status block that co-located viewers can poll.
package control

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ControlSize = 4096       // 1 page
	Magic       = 0x50564643 // 'PVFC'
)

// Block is the layout of the control file.
type Block struct {
	Magic        uint32
	Version      uint32
	Generation   uint64 // Atomic
	Dimension    uint32
	TimePoints   uint32
	MetadataPath [256]byte
	Padding      [ControlSize - 280]byte
}

// Controller manages the memory-mapped control file.
type Controller struct {
	path string
	file *os.File
	data []byte
	ptr  *Block
}

// OpenOrCreate opens or creates a control file at the given path.
func OpenOrCreate(path string) (*Controller, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open control file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	if info.Size() < ControlSize {
		if err := f.Truncate(ControlSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, ControlSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	ptr := (*Block)(unsafe.Pointer(&data[0]))

	if ptr.Magic == 0 {
		ptr.Magic = Magic
		ptr.Version = 1
	} else if ptr.Magic != Magic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("invalid magic: %x", ptr.Magic)
	}

	return &Controller{
		path: path,
		file: f,
		data: data,
		ptr:  ptr,
	}, nil
}

// Path returns the control file path.
func (c *Controller) Path() string { return c.path }

// Generation returns the published generation atomically.
func (c *Controller) Generation() uint64 {
	return atomic.LoadUint64(&c.ptr.Generation)
}

// Dimension returns the grid side length of the published dataset.
func (c *Controller) Dimension() int {
	return int(atomic.LoadUint32(&c.ptr.Dimension))
}

// TimePoints returns the time axis length of the published dataset.
func (c *Controller) TimePoints() int {
	return int(atomic.LoadUint32(&c.ptr.TimePoints))
}

// MetadataPath returns the metadata file of the published dataset.
func (c *Controller) MetadataPath() string {
	b := c.ptr.MetadataPath[:]
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Publish describes a newly installed dataset. The generation is stored
// last, so a reader that observes it also observes the other fields.
func (c *Controller) Publish(generation uint64, dimension, timePoints int, metadataPath string) error {
	if len(metadataPath) >= len(c.ptr.MetadataPath) {
		return fmt.Errorf("path too long (max %d)", len(c.ptr.MetadataPath)-1)
	}

	copy(c.ptr.MetadataPath[:], metadataPath)
	c.ptr.MetadataPath[len(metadataPath)] = 0
	atomic.StoreUint32(&c.ptr.Dimension, uint32(dimension))
	atomic.StoreUint32(&c.ptr.TimePoints, uint32(timePoints))

	atomic.StoreUint64(&c.ptr.Generation, generation)
	return nil
}

// Close unmaps and closes the control file.
func (c *Controller) Close() error {
	if err := unix.Munmap(c.data); err != nil {
		return err
	}
	return c.file.Close()
}
