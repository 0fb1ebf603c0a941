package ingest

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

const (
	MetadataSuffix = "_metadata.json"

	// FirstWindowFile is the streamline window read synchronously at load.
	FirstWindowFile = "pvf_streamlines_time_window_0_4.json"

	// PackSuffix names the SQLite streamline pack written next to the
	// metadata file by `pvf pack`.
	PackSuffix = "_streamlines.db"
)

var (
	ErrInvalidName = errors.New("invalid subject or file name")

	windowRe = regexp.MustCompile(`^pvf_streamlines_time_window_(\d+)_(\d+)\.json$`)
)

// Paths are the sibling files of one dataset variant, relative to the
// subjects root.
type Paths struct {
	Metadata      string
	Vx, Vy, Vz    string
	CondA         string
	Patterns      string
	StreamlineDir string
	Pack          string
}

// Components returns the velocity file paths keyed by component name.
func (p Paths) Components() [3][2]string {
	return [3][2]string{{"Vx", p.Vx}, {"Vy", p.Vy}, {"Vz", p.Vz}}
}

// ResolvePaths derives every sibling path from the metadata file name by
// suffix substitution.
func ResolvePaths(subjectID, metadataFile string) (Paths, error) {
	if err := checkName(subjectID); err != nil {
		return Paths{}, fmt.Errorf("subject %q: %w", subjectID, err)
	}
	if err := checkName(metadataFile); err != nil {
		return Paths{}, fmt.Errorf("file %q: %w", metadataFile, err)
	}
	if !strings.HasSuffix(metadataFile, MetadataSuffix) || metadataFile == MetadataSuffix {
		return Paths{}, fmt.Errorf("file %q does not end in %s: %w", metadataFile, MetadataSuffix, ErrInvalidName)
	}

	prefix := strings.TrimSuffix(metadataFile, MetadataSuffix)
	if err := checkName(prefix); err != nil {
		return Paths{}, fmt.Errorf("file %q: %w", metadataFile, err)
	}
	base := path.Join(subjectID, prefix)
	return Paths{
		Metadata:      base + MetadataSuffix,
		Vx:            base + "_Vx.json",
		Vy:            base + "_Vy.json",
		Vz:            base + "_Vz.json",
		CondA:         base + "_condA.json",
		Patterns:      base + "_pattern_detection.json",
		StreamlineDir: base + "_streamlines",
		Pack:          base + PackSuffix,
	}, nil
}

// checkName rejects anything that is not a single path element.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	return nil
}

// Window is one streamline time-window file covering [TMin, TMax].
type Window struct {
	Name string
	TMin int
	TMax int
}

// Covers reports whether t falls inside the window's range.
func (w Window) Covers(t int) bool {
	return t >= w.TMin && t <= w.TMax
}

// ParseWindowName parses a file name following the time-window convention.
func ParseWindowName(name string) (Window, bool) {
	m := windowRe.FindStringSubmatch(name)
	if m == nil {
		return Window{}, false
	}
	lo, err1 := strconv.Atoi(m[1])
	hi, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || hi < lo {
		return Window{}, false
	}
	return Window{Name: name, TMin: lo, TMax: hi}, true
}

// WindowFileName is the inverse of ParseWindowName.
func WindowFileName(tmin, tmax int) string {
	return fmt.Sprintf("pvf_streamlines_time_window_%d_%d.json", tmin, tmax)
}
