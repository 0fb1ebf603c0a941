package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ndarray"
)

var (
	// ErrNoVelocity is the fatal load failure: none of Vx, Vy, Vz could be read.
	ErrNoVelocity = errors.New("no velocity component could be loaded")
	// ErrShapeMismatch is returned when the loaded components disagree on
	// shape or the spatial grid is not cubic.
	ErrShapeMismatch = errors.New("velocity components have inconsistent shapes")
)

// Loader reads dataset variants from a subjects tree.
type Loader struct {
	FS        billy.Filesystem
	Overrides Overrides
}

func NewLoader(fs billy.Filesystem, overrides Overrides) *Loader {
	if overrides == nil {
		overrides = DefaultOverrides()
	}
	return &Loader{FS: fs, Overrides: overrides}
}

// Load reads every file of the variant named by id and returns a complete,
// not yet installed, dataset. Only the velocity volumes are required; any
// other file that is missing or malformed is recorded in Dataset.Warnings.
func (l *Loader) Load(ctx context.Context, id dataset.Identity) (*dataset.Dataset, error) {
	start := time.Now()
	paths, err := ResolvePaths(id.SubjectID, id.MetadataFile)
	if err != nil {
		return nil, err
	}

	ds := dataset.New(id)
	ds.StreamlineDir = paths.StreamlineDir
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		ds.Warnings = append(ds.Warnings, msg)
		slog.Warn("ingest: "+msg, "subject", id.SubjectID, "file", id.MetadataFile)
	}

	vel, verrs, err := l.loadVelocity(ctx, paths)
	if err != nil {
		return nil, err
	}
	if vel.Vx == nil && vel.Vy == nil && vel.Vz == nil {
		return nil, fmt.Errorf("load %s: %w", id, errors.Join(append([]error{ErrNoVelocity}, verrs...)...))
	}
	for _, e := range verrs {
		warn("%v", e)
	}
	ref, err := checkShapes(vel)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	ds.Velocity = vel
	ds.Dimension = ref.Dimension()
	ds.NumTimePoints = ref.TimePoints()

	l.loadMetadata(ds, paths.Metadata, warn)
	l.resolveDimShift(ds, warn)

	if doc, _, err := readJSON(l.FS, paths.CondA); err != nil {
		warn("condition numbers unavailable: %v", err)
	} else if entries, skipped, err := timeKeyed(doc); err != nil {
		warn("condition numbers: %v", err)
	} else {
		for t, v := range entries {
			fs, ok := ndarray.Floats(v)
			if !ok {
				warn("condition numbers at t=%d are not a numeric list", t)
				continue
			}
			ds.ConditionNumbers[t] = fs
		}
		skippedKeys(warn, "condition numbers", skipped)
	}

	if doc, _, err := readJSON(l.FS, paths.Patterns); err != nil {
		warn("patterns unavailable: %v", err)
	} else if entries, skipped, err := timeKeyed(doc); err != nil {
		warn("patterns: %v", err)
	} else {
		ds.Patterns = entries
		skippedKeys(warn, "patterns", skipped)
	}

	first := paths.StreamlineDir + "/" + FirstWindowFile
	if doc, _, err := readJSON(l.FS, first); err != nil {
		warn("first streamline window unavailable: %v", err)
	} else if entries, skipped, err := timeKeyed(doc); err != nil {
		warn("first streamline window: %v", err)
	} else {
		ds.Window = entries
		skippedKeys(warn, "streamlines", skipped)
	}

	if info, err := l.FS.Stat(paths.Pack); err == nil && !info.IsDir() {
		ds.StreamlinePack = paths.Pack
	}

	slog.Info("ingest: loaded dataset",
		"subject", id.SubjectID,
		"file", id.MetadataFile,
		"dimension", ds.Dimension,
		"time_points", ds.NumTimePoints,
		"mask_voxels", ds.Metadata.MaskVoxels,
		"warnings", len(ds.Warnings),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return ds, nil
}

// loadVelocity reads the three components in parallel. Per-component
// failures are returned in errs; err is only set when ctx is cancelled.
func (l *Loader) loadVelocity(ctx context.Context, paths Paths) (vel dataset.Velocity, errs []error, err error) {
	var vols [3]*ndarray.Volume
	var fails [3]error

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range paths.Components() {
		name, file := c[0], c[1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vols[i], fails[i] = l.readVolume(name, file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return dataset.Velocity{}, nil, err
	}
	for _, f := range fails {
		if f != nil {
			errs = append(errs, f)
		}
	}
	return dataset.Velocity{Vx: vols[0], Vy: vols[1], Vz: vols[2]}, errs, nil
}

func (l *Loader) readVolume(component, file string) (*ndarray.Volume, error) {
	doc, size, err := readJSON(l.FS, file)
	if err != nil {
		return nil, fmt.Errorf("%s unavailable: %w", component, err)
	}
	raw, ok := field(doc, componentPaths[component])
	if !ok {
		return nil, fmt.Errorf("%s: %s has no %q property", component, file, component)
	}
	vol, err := ndarray.DecodeVolume(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", component, err)
	}
	slog.Debug("ingest: decoded volume", "component", component, "shape", vol.Shape, "bytes", size)
	return vol, nil
}

// checkShapes returns the reference volume (Vx, or the first present one)
// after verifying every present component shares its shape on a cubic grid.
func checkShapes(vel dataset.Velocity) (*ndarray.Volume, error) {
	var ref *ndarray.Volume
	for _, v := range vel.Components() {
		if v == nil {
			continue
		}
		if ref == nil {
			ref = v
			continue
		}
		if !ref.SameShape(v) {
			return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, ref.Shape, v.Shape)
		}
	}
	if !ref.Cubic() {
		return nil, fmt.Errorf("%w: spatial grid %v is not cubic", ErrShapeMismatch, ref.Shape[:3])
	}
	if ref.Dimension() == 0 || ref.TimePoints() == 0 {
		return nil, fmt.Errorf("%w: empty volume %v", ErrShapeMismatch, ref.Shape)
	}
	return ref, nil
}

func (l *Loader) loadMetadata(ds *dataset.Dataset, file string, warn func(string, ...any)) {
	doc, _, err := readJSON(l.FS, file)
	if err != nil {
		warn("metadata unavailable: %v", err)
		return
	}

	if raw, ok := field(doc, pathDimShift); ok {
		if shift, ok := ints(raw); ok && len(shift) == 3 {
			ds.Metadata.DimShift = shift
		} else {
			warn("metadata dim_shift is not three integers")
		}
	}

	if raw, ok := field(doc, pathTimes); ok {
		if times, ok := ndarray.Floats(raw); ok {
			ds.Metadata.Times = times
			if len(times) != ds.NumTimePoints {
				warn("metadata lists %d times but volumes hold %d time points", len(times), ds.NumTimePoints)
			}
		} else {
			warn("metadata times is not a numeric list")
		}
	}

	raw, ok := field(doc, pathVolumeMask)
	if !ok {
		warn("metadata has no volume_mask")
		return
	}
	ds.Metadata.VolumeMask = raw
	ds.Metadata.MaskVoxels = int(ndarray.FlattenSum3D(raw))
	mask, err := MaskBitmap(raw, ds.Dimension)
	if err != nil {
		warn("volume mask: %v", err)
	}
	ds.Metadata.Mask = mask
}

func (l *Loader) resolveDimShift(ds *dataset.Dataset, warn func(string, ...any)) {
	if shift, ok := l.Overrides.Lookup(ds.SubjectID); ok {
		if len(ds.Metadata.DimShift) == 3 && !slices.Equal(ds.Metadata.DimShift, shift[:]) {
			slog.Info("ingest: dim shift overridden", "subject", ds.SubjectID, "metadata", ds.Metadata.DimShift, "override", shift)
		}
		ds.DimShift = shift
		return
	}
	if len(ds.Metadata.DimShift) == 3 {
		copy(ds.DimShift[:], ds.Metadata.DimShift)
		return
	}
	warn("no dim shift available, using %v", DefaultDimShift)
	ds.DimShift = DefaultDimShift
}

// MaskBitmap indexes the non-zero voxels of a 3-D mask as x-major offsets
// ((x*dim + y)*dim + z). Voxels outside [0, dim)^3 are dropped and reported.
func MaskBitmap(mask any, dim int) (*roaring.Bitmap, error) {
	bm := roaring.New()
	xs, ok := mask.([]any)
	if !ok {
		return bm, fmt.Errorf("expected a 3-D array, got %T", mask)
	}
	dropped := 0
	for x, xv := range xs {
		ys, _ := xv.([]any)
		for y, yv := range ys {
			zs, _ := yv.([]any)
			for z, zv := range zs {
				f, ok := ndarray.Float(zv)
				if !ok || f == 0 {
					continue
				}
				if x >= dim || y >= dim || z >= dim {
					dropped++
					continue
				}
				bm.Add(uint32((x*dim+y)*dim + z))
			}
		}
	}
	if dropped > 0 {
		return bm, fmt.Errorf("%d voxels outside the %d^3 grid ignored", dropped, dim)
	}
	return bm, nil
}

func skippedKeys(warn func(string, ...any), what string, keys []string) {
	if len(keys) > 0 {
		warn("%s: ignored non-integer keys %v", what, keys)
	}
}
