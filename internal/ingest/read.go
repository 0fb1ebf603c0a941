package ingest

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"github.com/ohler55/ojg/oj"
)

// mmapThreshold is the size above which files backed by an OS descriptor are
// mapped instead of copied into the heap before parsing.
const mmapThreshold = 1 << 20

// readJSON parses the JSON document at name. It returns the document and the
// file size.
func readJSON(fs billy.Filesystem, name string) (any, int64, error) {
	info, err := fs.Stat(name)
	if err != nil {
		return nil, 0, err
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%s is a directory", name)
	}

	f, err := fs.Open(name)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	size := info.Size()
	var buf []byte
	if size >= mmapThreshold {
		data, unmap, err := mapFile(f, size)
		if err == nil {
			defer func() { _ = unmap() }()
			buf = data
		} else {
			slog.Debug("ingest: mmap unavailable, reading into memory", "path", name, "err", err)
		}
	}
	if buf == nil {
		if buf, err = io.ReadAll(f); err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", name, err)
		}
	}

	doc, err := oj.Parse(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", name, err)
	}
	slog.Debug("ingest: parsed", "path", name, "size", humanize.Bytes(uint64(size)))
	return doc, size, nil
}
