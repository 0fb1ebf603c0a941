// Package pvftest writes subject trees for tests.
package pvftest

import (
	"encoding/json"
	"path"
	"slices"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// Subject describes one dataset variant to write.
type Subject struct {
	ID     string
	Prefix string
	Dim    int
	T      int

	// Value gives component c (0=Vx, 1=Vy, 2=Vz) at (x, y, z, t). Defaults
	// to Value.
	Value func(c, x, y, z, t int) float64
	// Mask marks valid voxels. Defaults to every voxel.
	Mask func(x, y, z int) bool

	DimShift []int
	Times    []float64
	CondA    map[string][]float64
	Patterns map[string]any
	// Windows maps a window file name to its time-keyed entries.
	Windows map[string]map[string]any

	// Omit lists file suffixes not to write ("_Vx.json", "_condA.json", ...).
	Omit []string
	// Raw replaces the content of the file with the given suffix, or of the
	// window file with the given name.
	Raw map[string]string
}

// Value is the default voxel function; every entry is distinct.
func Value(c, x, y, z, t int) float64 {
	return float64(c*10000 + x*1000 + y*100 + z*10 + t)
}

// MetadataFile is the metadata file name of s.
func (s Subject) MetadataFile() string {
	return s.Prefix + "_metadata.json"
}

// Volume builds the nested [x][y][z][t] array for component c.
func (s Subject) Volume(c int) [][][][]float64 {
	value := s.Value
	if value == nil {
		value = Value
	}
	out := make([][][][]float64, s.Dim)
	for x := range out {
		out[x] = make([][][]float64, s.Dim)
		for y := range out[x] {
			out[x][y] = make([][]float64, s.Dim)
			for z := range out[x][y] {
				series := make([]float64, s.T)
				for t := range series {
					series[t] = value(c, x, y, z, t)
				}
				out[x][y][z] = series
			}
		}
	}
	return out
}

// MaskArray builds the nested 0/1 mask.
func (s Subject) MaskArray() [][][]int {
	out := make([][][]int, s.Dim)
	for x := range out {
		out[x] = make([][]int, s.Dim)
		for y := range out[x] {
			out[x][y] = make([]int, s.Dim)
			for z := range out[x][y] {
				if s.Mask == nil || s.Mask(x, y, z) {
					out[x][y][z] = 1
				}
			}
		}
	}
	return out
}

// NewFS returns an in-memory subjects root holding subjects.
func NewFS(t testing.TB, subjects ...Subject) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for _, s := range subjects {
		Write(t, fs, s)
	}
	return fs
}

// Write writes every file of s under fs.
func Write(t testing.TB, fs billy.Filesystem, s Subject) {
	t.Helper()
	base := path.Join(s.ID, s.Prefix)

	meta := map[string]any{"volume_mask": s.MaskArray()}
	if s.DimShift != nil {
		meta["dim_shift"] = s.DimShift
	}
	if s.Times != nil {
		meta["times"] = s.Times
	}

	files := map[string]any{
		"_metadata.json": meta,
		"_Vx.json":       map[string]any{"Vx": s.Volume(0)},
		"_Vy.json":       map[string]any{"Vy": s.Volume(1)},
		"_Vz.json":       map[string]any{"Vz": s.Volume(2)},
	}
	if s.CondA != nil {
		files["_condA.json"] = s.CondA
	}
	if s.Patterns != nil {
		files["_pattern_detection.json"] = s.Patterns
	}

	for suffix, doc := range files {
		if slices.Contains(s.Omit, suffix) {
			continue
		}
		writeFile(t, fs, base+suffix, doc, s.Raw[suffix])
	}
	for suffix, raw := range s.Raw {
		if _, done := files[suffix]; !done && strings.HasPrefix(suffix, "_") {
			writeFile(t, fs, base+suffix, nil, raw)
		}
	}

	dir := base + "_streamlines"
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	for name, entries := range s.Windows {
		writeFile(t, fs, path.Join(dir, name), entries, s.Raw[name])
	}
}

// WriteJSON writes doc as JSON at name.
func WriteJSON(t testing.TB, fs billy.Filesystem, name string, doc any) {
	t.Helper()
	writeFile(t, fs, name, doc, "")
}

func writeFile(t testing.TB, fs billy.Filesystem, name string, doc any, raw string) {
	t.Helper()
	data := []byte(raw)
	if raw == "" {
		var err error
		data, err = json.Marshal(doc)
		require.NoError(t, err)
	}
	require.NoError(t, util.WriteFile(fs, name, data, 0o644))
}
