package ingest

import (
	"errors"
	"strings"
	"testing"
)

func FuzzParseWindowName(f *testing.F) {
	f.Add("pvf_streamlines_time_window_0_4.json")
	f.Add("pvf_streamlines_time_window_10_5.json")
	f.Add("pvf_streamlines_time_window_007_9.json")
	f.Add("pvf_streamlines_time_window_99999999999999999999_1.json")
	f.Add("")

	f.Fuzz(func(t *testing.T, name string) {
		w, ok := ParseWindowName(name)
		if !ok {
			return
		}
		if w.TMin < 0 || w.TMax < w.TMin {
			t.Fatalf("%q parsed to inverted range [%d, %d]", name, w.TMin, w.TMax)
		}
		if !w.Covers(w.TMin) || !w.Covers(w.TMax) {
			t.Fatalf("%q does not cover its own bounds", name)
		}
		if w.Name != name {
			t.Fatalf("name %q not kept", name)
		}
	})
}

func FuzzResolvePaths(f *testing.F) {
	f.Add("sub-001", "pvf_metadata.json")
	f.Add("..", "pvf_metadata.json")
	f.Add("sub-001", "../../etc/passwd_metadata.json")
	f.Add("sub-001", "_metadata.json")

	f.Fuzz(func(t *testing.T, subject, file string) {
		p, err := ResolvePaths(subject, file)
		if err != nil {
			if !errors.Is(err, ErrInvalidName) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		for _, name := range []string{p.Metadata, p.Vx, p.Vy, p.Vz, p.CondA, p.Patterns, p.StreamlineDir, p.Pack} {
			if !strings.HasPrefix(name, subject+"/") || strings.Count(name, "/") != 1 {
				t.Fatalf("%q escapes subject %q", name, subject)
			}
		}
	})
}
