package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// ErrNoWindow is returned when no window of a corpus covers a time index.
var ErrNoWindow = errors.New("no streamline window covers time index")

// Corpus is a source of streamline time windows for one dataset variant.
type Corpus interface {
	// Windows lists the windows available, ordered by TMin.
	Windows(ctx context.Context) ([]Window, error)
	// Load reads one window as a time-index keyed map.
	Load(ctx context.Context, w Window) (map[int]any, error)
	// Source names the corpus for logs and status.
	Source() string
}

// WindowFor returns the window of c that covers t.
func WindowFor(ctx context.Context, c Corpus, t int) (Window, error) {
	ws, err := c.Windows(ctx)
	if err != nil {
		return Window{}, err
	}
	for _, w := range ws {
		if w.Covers(t) {
			return w, nil
		}
	}
	return Window{}, fmt.Errorf("%d in %s: %w", t, c.Source(), ErrNoWindow)
}

// DirCorpus reads window files from a streamline directory.
type DirCorpus struct {
	FS  billy.Filesystem
	Dir string
}

func (c *DirCorpus) Source() string { return c.Dir }

func (c *DirCorpus) Windows(ctx context.Context) ([]Window, error) {
	entries, err := c.FS.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.Dir, err)
	}
	var out []Window
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if w, ok := ParseWindowName(e.Name()); ok {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, ctx.Err()
}

func (c *DirCorpus) Load(ctx context.Context, w Window) (map[int]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, _, err := readJSON(c.FS, path.Join(c.Dir, w.Name))
	if err != nil {
		return nil, err
	}
	entries, skipped, err := timeKeyed(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.Name, err)
	}
	if len(skipped) > 0 {
		slog.Warn("ingest: ignored non-integer streamline keys", "window", w.Name, "keys", skipped)
	}
	return entries, nil
}

func sortWindows(ws []Window) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].TMin != ws[j].TMin {
			return ws[i].TMin < ws[j].TMin
		}
		return ws[i].Name < ws[j].Name
	})
}

// ListSubjects returns the subject directories under the root of fs. A
// missing root yields an empty list.
func ListSubjects(fs billy.Filesystem) ([]string, error) {
	entries, err := fs.ReadDir("/")
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListSubjectFiles returns the metadata files of a subject.
func ListSubjectFiles(fs billy.Filesystem, subjectID string) ([]string, error) {
	if err := checkName(subjectID); err != nil {
		return nil, fmt.Errorf("subject %q: %w", subjectID, err)
	}
	entries, err := fs.ReadDir(subjectID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", subjectID, err)
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), MetadataSuffix) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
