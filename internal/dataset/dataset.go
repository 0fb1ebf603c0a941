// Package dataset holds the in-memory representation of the currently
// loaded subject (the active dataset) and the versioned store that owns it.
package dataset

import (
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/pvf/internal/ndarray"
)

// Identity names a dataset variant: a subject plus one of its metadata files.
type Identity struct {
	SubjectID    string
	MetadataFile string
}

// IsZero reports whether the identity is empty (nothing loaded).
func (id Identity) IsZero() bool {
	return id.SubjectID == "" && id.MetadataFile == ""
}

func (id Identity) String() string {
	return id.SubjectID + "/" + id.MetadataFile
}

// Metadata is the parsed metadata file of a dataset variant.
type Metadata struct {
	// VolumeMask is the mask exactly as decoded, passed through to clients.
	VolumeMask any
	// Mask indexes the valid voxels as x-major linear offsets
	// ((x*dim + y)*dim + z). Nil when the metadata file is unavailable.
	Mask *roaring.Bitmap
	// MaskVoxels is the population of VolumeMask (sum of its leaves).
	MaskVoxels int
	DimShift   []int
	Times      []float64
}

// Velocity holds the three component volumes. A component is nil when its
// file could not be loaded; at least one is always present on an installed
// dataset and all present components share one shape.
type Velocity struct {
	Vx, Vy, Vz *ndarray.Volume
}

// Components returns the volumes in x, y, z order.
func (v Velocity) Components() [3]*ndarray.Volume {
	return [3]*ndarray.Volume{v.Vx, v.Vy, v.Vz}
}

// Dataset is one loaded subject variant. Everything except the streamline
// caches is immutable once the dataset is installed in a Store.
type Dataset struct {
	Identity
	Generation uint64

	Metadata      Metadata
	Dimension     int
	NumTimePoints int
	DimShift      [3]int
	Velocity      Velocity

	ConditionNumbers map[int][]float64
	Patterns         map[int]any

	// Window holds the first time window's streamlines read during load.
	Window map[int]any
	// Full is filled in the background by the corpus prefetcher and by
	// explicit streamline refreshes.
	Full *StreamlineCache

	StreamlineDir  string
	StreamlinePack string

	Warnings []string
	LoadedAt time.Time
}

// New returns an empty dataset for id with initialized caches.
func New(id Identity) *Dataset {
	return &Dataset{
		Identity:         id,
		ConditionNumbers: map[int][]float64{},
		Patterns:         map[int]any{},
		Window:           map[int]any{},
		Full:             NewStreamlineCache(),
	}
}

// CheckTime validates t against the dataset's time axis.
func (d *Dataset) CheckTime(t int) error {
	if t < 0 || t >= d.NumTimePoints {
		return &RangeError{Index: t, Count: d.NumTimePoints}
	}
	return nil
}

// Streamlines resolves the streamline entry for t: the full cache wins over
// the first-window cache. ok is false when neither holds t.
func (d *Dataset) Streamlines(t int) (geometry any, fromFull bool, ok bool) {
	if g, hit := d.Full.Get(t); hit {
		return g, true, true
	}
	if g, hit := d.Window[t]; hit {
		return g, false, true
	}
	return nil, false, false
}
