package ndarray

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrRagged is returned when a nested container is not rectangular.
var ErrRagged = errors.New("ragged array")

// Volume is a dense 4-D float64 array indexed [x][y][z][t], stored
// with t varying fastest.
type Volume struct {
	Shape [4]int
	Data  []float64
}

// DecodeVolume converts a decoded 4-level nested array into a Volume.
// The shape is taken from Shape(v); every branch must then agree with it.
func DecodeVolume(v any) (*Volume, error) {
	shape := Shape(v)
	if len(shape) != 4 {
		return nil, fmt.Errorf("volume must have 4 axes, got shape %v", shape)
	}
	vol := &Volume{Shape: [4]int{shape[0], shape[1], shape[2], shape[3]}}
	n := shape[0] * shape[1] * shape[2] * shape[3]
	vol.Data = make([]float64, 0, n)

	var walk func(rv reflect.Value, depth int, at []int) error
	walk = func(rv reflect.Value, depth int, at []int) error {
		rv = deref(rv)
		if depth == 4 {
			f, ok := toFloat(rv)
			if !ok {
				return fmt.Errorf("non-numeric value at %v", at)
			}
			vol.Data = append(vol.Data, f)
			return nil
		}
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return fmt.Errorf("%w: expected array at %v", ErrRagged, at)
		}
		if rv.Len() != shape[depth] {
			return fmt.Errorf("%w: axis %d has length %d at %v, want %d", ErrRagged, depth, rv.Len(), at, shape[depth])
		}
		for i := 0; i < rv.Len(); i++ {
			if err := walk(rv.Index(i), depth+1, append(at, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(reflect.ValueOf(v), 0, make([]int, 0, 4)); err != nil {
		return nil, err
	}
	return vol, nil
}

// At returns the value at [x][y][z][t]. Indices are not bounds-checked
// beyond what the slice access itself does.
func (v *Volume) At(x, y, z, t int) float64 {
	return v.Data[v.offset(x, y, z)+t]
}

// Series returns the time series of one voxel without copying.
func (v *Volume) Series(x, y, z int) []float64 {
	off := v.offset(x, y, z)
	return v.Data[off : off+v.Shape[3]]
}

func (v *Volume) offset(x, y, z int) int {
	return ((x*v.Shape[1]+y)*v.Shape[2] + z) * v.Shape[3]
}

// Dimension is the side length of the spatial grid (axis 0).
func (v *Volume) Dimension() int { return v.Shape[0] }

// TimePoints is the number of samples along the time axis (axis 3).
func (v *Volume) TimePoints() int { return v.Shape[3] }

// Cubic reports whether the three spatial axes have equal length.
func (v *Volume) Cubic() bool {
	return v.Shape[0] == v.Shape[1] && v.Shape[1] == v.Shape[2]
}

// SameShape reports whether two volumes share all four axis lengths.
func (v *Volume) SameShape(o *Volume) bool {
	return o != nil && v.Shape == o.Shape
}
