// Package nfsexport exposes the active dataset as a read-only NFS tree:
//
//	/status.json        the active dataset and its prefetch
//	/slices/<t>.json    the time slice at index t
//
// Slices are rendered on first access and cached per dataset generation.
package nfsexport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/dataset"
)

var errReadOnly = errors.New("read-only filesystem")

const (
	statusFile = "/status.json"
	slicesDir  = "/slices"
)

// Source is what the export reads from; *service.Service satisfies it.
type Source interface {
	Active() (*dataset.Dataset, error)
	SliceOf(ds *dataset.Dataset, t int) (*api.SlicePayload, error)
	Status() api.Status
}

type sliceKey struct {
	gen uint64
	t   int
}

// SliceFS adapts a Source to billy.Filesystem for use with go-nfs.
type SliceFS struct {
	src       Source
	rendered  *lru.Cache[sliceKey, []byte]
	mountTime time.Time
}

// NewSliceFS keeps up to cacheSize rendered slices in memory.
func NewSliceFS(src Source, cacheSize int) (*SliceFS, error) {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	c, err := lru.New[sliceKey, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("slice cache: %w", err)
	}
	return &SliceFS{src: src, rendered: c, mountTime: time.Now()}, nil
}

// --- billy.Basic ---

func (fs *SliceFS) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

func (fs *SliceFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *SliceFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, errReadOnly
	}
	if filename == "/" || filename == slicesDir {
		return nil, &os.PathError{Op: "open", Path: filename, Err: errors.New("is a directory")}
	}
	data, _, err := fs.render(filename)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	return &bytesFile{name: filepath.Base(filename), data: data}, nil
}

func (fs *SliceFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

func (fs *SliceFS) Rename(oldpath, newpath string) error {
	return errReadOnly
}

func (fs *SliceFS) Remove(filename string) error {
	return errReadOnly
}

func (fs *SliceFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *SliceFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

// ReadDir lists the tree. Slices that have not been rendered yet are listed
// with size 0; Stat renders them.
func (fs *SliceFS) ReadDir(path string) ([]os.FileInfo, error) {
	switch cleanPath(path) {
	case "/":
		status, _, err := fs.render(statusFile)
		if err != nil {
			return nil, err
		}
		return []os.FileInfo{
			fileInfo("status.json", int64(len(status)), time.Now()),
			dirInfo("slices", fs.mountTime),
		}, nil
	case slicesDir:
		ds, err := fs.src.Active()
		if err != nil {
			return []os.FileInfo{}, nil
		}
		infos := make([]os.FileInfo, 0, ds.NumTimePoints)
		for t := range ds.NumTimePoints {
			var size int64
			if data, ok := fs.rendered.Peek(sliceKey{gen: ds.Generation, t: t}); ok {
				size = int64(len(data))
			}
			infos = append(infos, fileInfo(sliceName(t), size, ds.LoadedAt))
		}
		return infos, nil
	default:
		return nil, &os.PathError{Op: "readdir", Path: path, Err: os.ErrNotExist}
	}
}

func (fs *SliceFS) MkdirAll(filename string, perm os.FileMode) error {
	return errReadOnly
}

// --- billy.Symlink ---

func (fs *SliceFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	switch filename {
	case "/":
		return dirInfo("/", fs.mountTime), nil
	case slicesDir:
		return dirInfo("slices", fs.mountTime), nil
	}
	data, modTime, err := fs.render(filename)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: err}
	}
	return fileInfo(filepath.Base(filename), int64(len(data)), modTime), nil
}

func (fs *SliceFS) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (fs *SliceFS) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *SliceFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *SliceFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *SliceFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// --- internals ---

// render returns the content of a file path. Unknown paths, time indices
// outside the active dataset, and slices requested before any load all
// report os.ErrNotExist.
func (fs *SliceFS) render(path string) ([]byte, time.Time, error) {
	if path == statusFile {
		data, err := marshal(fs.src.Status())
		return data, time.Now(), err
	}

	t, ok := parseSliceName(path)
	if !ok {
		return nil, time.Time{}, os.ErrNotExist
	}
	ds, err := fs.src.Active()
	if err != nil {
		return nil, time.Time{}, os.ErrNotExist
	}
	if ds.CheckTime(t) != nil {
		return nil, time.Time{}, os.ErrNotExist
	}

	key := sliceKey{gen: ds.Generation, t: t}
	if data, ok := fs.rendered.Get(key); ok {
		return data, ds.LoadedAt, nil
	}
	p, err := fs.src.SliceOf(ds, t)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := marshal(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	fs.rendered.Add(key, data)
	return data, ds.LoadedAt, nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func sliceName(t int) string {
	return strconv.Itoa(t) + ".json"
}

// parseSliceName accepts only canonical names: "/slices/7.json", not
// "/slices/07.json".
func parseSliceName(path string) (int, bool) {
	rest, ok := strings.CutPrefix(path, slicesDir+"/")
	if !ok {
		return 0, false
	}
	stem, ok := strings.CutSuffix(rest, ".json")
	if !ok {
		return 0, false
	}
	t, err := strconv.Atoi(stem)
	if err != nil || t < 0 || strconv.Itoa(t) != stem {
		return 0, false
	}
	return t, true
}

// cleanPath normalizes a billy path to a clean absolute path.
func cleanPath(path string) string {
	path = filepath.Clean("/" + path)
	if path == "." {
		return "/"
	}
	return path
}

func fileInfo(name string, size int64, modTime time.Time) os.FileInfo {
	return &staticFileInfo{name: name, size: size, mode: 0o444, modTime: modTime}
}

func dirInfo(name string, modTime time.Time) os.FileInfo {
	return &staticFileInfo{name: name, mode: os.ModeDir | 0o555, modTime: modTime}
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() any           { return nil }

var (
	_ billy.Filesystem = (*SliceFS)(nil)
	_ billy.Capable    = (*SliceFS)(nil)
	_ billy.File       = (*bytesFile)(nil)
)
