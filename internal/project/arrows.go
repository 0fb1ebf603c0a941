package project

import (
	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ndarray"
)

// ArrowScale converts shifted grid indices to viewer units.
const ArrowScale = 5

// Arrows projects the masked voxels at t into vector glyphs. Positions are
// ((x, y, z) - dimShift) * ArrowScale in x-major order; directions are the
// velocity components at t, 0 for a component that was not loaded. Without
// a volume mask every voxel is emitted.
func Arrows(ds *dataset.Dataset, t int) (*api.Arrows, error) {
	if err := ds.CheckTime(t); err != nil {
		return nil, err
	}
	out := &api.Arrows{
		SubjectID:       ds.SubjectID,
		TimeIndex:       t,
		DimShift:        ds.DimShift,
		Times:           ds.Metadata.Times,
		ConditionNumber: ConditionNumber(ds, t),
		Positions:       [][3]float64{},
		Directions:      [][3]float64{},
		Streamlines:     [][][]float64{},
	}

	dim := ds.Dimension
	emit := func(x, y, z int) {
		out.Positions = append(out.Positions, shift(ds.DimShift, float64(x), float64(y), float64(z)))
		var d [3]float64
		for i, v := range ds.Velocity.Components() {
			if v != nil {
				d[i] = v.At(x, y, z, t)
			}
		}
		out.Directions = append(out.Directions, d)
	}

	if mask := ds.Metadata.Mask; mask != nil {
		it := mask.Iterator()
		for it.HasNext() {
			i := int(it.Next())
			emit(i/(dim*dim), (i/dim)%dim, i%dim)
		}
	} else {
		for x := 0; x < dim; x++ {
			for y := 0; y < dim; y++ {
				for z := 0; z < dim; z++ {
					emit(x, y, z)
				}
			}
		}
	}

	if geometry, _, ok := ds.Streamlines(t); ok {
		out.Streamlines = ShiftStreamlines(geometry, ds.DimShift)
	}
	return out, nil
}

// ShiftStreamlines maps every point of every streamline into the same
// physical frame as Arrows. Points that are not numeric triples are dropped.
func ShiftStreamlines(geometry any, dimShift [3]int) [][][]float64 {
	lines, ok := geometry.([]any)
	if !ok {
		return [][][]float64{}
	}
	out := make([][][]float64, 0, len(lines))
	for _, l := range lines {
		points, ok := l.([]any)
		if !ok {
			continue
		}
		shifted := make([][]float64, 0, len(points))
		for _, pt := range points {
			c, ok := ndarray.Floats(pt)
			if !ok || len(c) < 3 {
				continue
			}
			p := shift(dimShift, c[0], c[1], c[2])
			shifted = append(shifted, p[:])
		}
		out = append(out, shifted)
	}
	return out
}

func shift(dimShift [3]int, x, y, z float64) [3]float64 {
	return [3]float64{
		(x - float64(dimShift[0])) * ArrowScale,
		(y - float64(dimShift[1])) * ArrowScale,
		(z - float64(dimShift[2])) * ArrowScale,
	}
}
