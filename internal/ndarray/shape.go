// Package ndarray provides best-effort shape inference and reductions over
// nested numeric containers as produced by a JSON decoder ([]any of []any of
// numbers), plus a dense 4-D volume type for velocity components.
package ndarray

import (
	"encoding/json"
	"reflect"
)

// Shape returns the dimension lengths of a nested container by repeatedly
// taking the length of the first element until a non-container is reached.
// Non-containers have an empty shape.
//
// Only the first child at each level is inspected, so ragged input is
// reported with the shape of its first branch. Shape never validates that
// siblings agree; use DecodeVolume when a rectangular array is required.
func Shape(v any) []int {
	shape := []int{}
	rv := reflect.ValueOf(v)
	for {
		rv = deref(rv)
		if !rv.IsValid() {
			return shape
		}
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return shape
		}
		// Byte slices are scalar payloads, not containers.
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return shape
		}
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			return shape
		}
		rv = rv.Index(0)
	}
}

// FlattenSum3D sums every numeric leaf of a nested container. Booleans count
// as 0 or 1 so that a true/false voxel mask sums to its population. Leaves
// that are neither numbers nor booleans contribute nothing.
func FlattenSum3D(cube any) float64 {
	return sum(reflect.ValueOf(cube))
}

func sum(rv reflect.Value) float64 {
	rv = deref(rv)
	if !rv.IsValid() {
		return 0
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		total := 0.0
		for i := 0; i < rv.Len(); i++ {
			total += sum(rv.Index(i))
		}
		return total
	}
	f, _ := toFloat(rv)
	return f
}

// Mean returns the arithmetic mean of xs. The mean of an empty sequence is
// defined as 0 rather than treated as an error.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

// Float converts a decoded JSON scalar to float64.
func Float(v any) (float64, bool) {
	return toFloat(deref(reflect.ValueOf(v)))
}

// Floats converts a flat decoded JSON array to []float64. The second return
// is false if v is not a container or any element is not numeric.
func Floats(v any) ([]float64, bool) {
	rv := deref(reflect.ValueOf(v))
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]float64, rv.Len())
	for i := range out {
		f, ok := toFloat(deref(rv.Index(i)))
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func deref(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func toFloat(rv reflect.Value) (float64, bool) {
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	case reflect.String:
		if rv.Type() == reflect.TypeOf(json.Number("")) {
			f, err := json.Number(rv.String()).Float64()
			return f, err == nil
		}
	}
	return 0, false
}
