package ingest

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/pvf/internal/ndarray"
)

var (
	pathVolumeMask = jp.MustParseString("$.volume_mask")
	pathDimShift   = jp.MustParseString("$.dim_shift")
	pathTimes      = jp.MustParseString("$.times")
)

var componentPaths = map[string]jp.Expr{
	"Vx": jp.MustParseString("$.Vx"),
	"Vy": jp.MustParseString("$.Vy"),
	"Vz": jp.MustParseString("$.Vz"),
}

// field returns the first value selected by x, or false when the document
// holds nothing at that path.
func field(doc any, x jp.Expr) (any, bool) {
	v := x.First(doc)
	if v == nil {
		return nil, false
	}
	return v, true
}

// ints converts a numeric JSON array into ints. Fractional values are
// rejected.
func ints(v any) ([]int, bool) {
	fs, ok := ndarray.Floats(v)
	if !ok {
		return nil, false
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		if f != float64(int(f)) {
			return nil, false
		}
		out[i] = int(f)
	}
	return out, true
}

// timeKeyed converts an object keyed by stringified time index into an int
// keyed map. Keys that are not integers are returned in skipped.
func timeKeyed(doc any) (entries map[int]any, skipped []string, err error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("expected an object keyed by time index, got %T", doc)
	}
	entries = make(map[int]any, len(obj))
	for k, v := range obj {
		// only canonical decimal keys; "+3" or "03" would alias "3"
		t, err := strconv.Atoi(k)
		if err != nil || t < 0 || strconv.Itoa(t) != k {
			skipped = append(skipped, k)
			continue
		}
		entries[t] = v
	}
	sort.Strings(skipped)
	return entries, skipped, nil
}
