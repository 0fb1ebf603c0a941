// Package project turns the active dataset into per-time-index payloads.
// Every function here is a pure read of the dataset.
package project

import (
	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ndarray"
)

// Frames are the three component volumes at one time index. A component
// that was not loaded has a nil frame.
type Frames struct {
	Vx, Vy, Vz api.Frame
}

// Frame extracts the scalar volume of v at t. Values are copied exactly.
func Frame(v *ndarray.Volume, t int) api.Frame {
	if v == nil {
		return nil
	}
	dim := v.Dimension()
	cells := make([][1]float64, dim*dim*dim)
	rows := make([][][1]float64, dim*dim)
	out := make(api.Frame, dim)
	for x := 0; x < dim; x++ {
		out[x] = rows[x*dim : (x+1)*dim : (x+1)*dim]
		for y := 0; y < dim; y++ {
			base := (x*dim + y) * dim
			row := cells[base : base+dim : base+dim]
			for z := range row {
				row[z][0] = v.At(x, y, z, t)
			}
			out[x][y] = row
		}
	}
	return out
}

// ProjectFrames extracts all three components at t.
func ProjectFrames(ds *dataset.Dataset, t int) (*Frames, error) {
	if err := ds.CheckTime(t); err != nil {
		return nil, err
	}
	return &Frames{
		Vx: Frame(ds.Velocity.Vx, t),
		Vy: Frame(ds.Velocity.Vy, t),
		Vz: Frame(ds.Velocity.Vz, t),
	}, nil
}

// ConditionNumber is the mean of the condition numbers recorded for t; a
// missing entry counts as an empty series.
func ConditionNumber(ds *dataset.Dataset, t int) float64 {
	return ndarray.Mean(ds.ConditionNumbers[t])
}

// Slice builds the payload for t. frames may come from a cache; when nil
// they are extracted from the dataset.
func Slice(ds *dataset.Dataset, t int, frames *Frames) (*api.SlicePayload, error) {
	if err := ds.CheckTime(t); err != nil {
		return nil, err
	}
	if frames == nil {
		frames, _ = ProjectFrames(ds, t)
	}

	p := &api.SlicePayload{
		SubjectID:       ds.SubjectID,
		MetadataFile:    ds.MetadataFile,
		Generation:      ds.Generation,
		VolumeMask:      ds.Metadata.VolumeMask,
		MaskVoxels:      ds.Metadata.MaskVoxels,
		Dimension:       ds.Dimension,
		NumTimePoints:   ds.NumTimePoints,
		Times:           ds.Metadata.Times,
		TimeIndex:       t,
		Vx:              frames.Vx,
		Vy:              frames.Vy,
		Vz:              frames.Vz,
		ConditionNumber: ConditionNumber(ds, t),
	}

	p.Patterns, p.PatternsAvailable = ds.Patterns[t]

	geometry, fromFull, ok := ds.Streamlines(t)
	switch {
	case !ok:
		p.StreamlineSource = api.StreamlinesUnavailable
	case fromFull:
		p.Streamlines, p.StreamlineSource = geometry, api.StreamlinesPrefetched
	default:
		p.Streamlines, p.StreamlineSource = geometry, api.StreamlinesWindow
	}
	return p, nil
}
