package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ingest"
	"github.com/agentic-research/pvf/internal/pvftest"
)

func loaded(t *testing.T, s pvftest.Subject) *dataset.Dataset {
	t.Helper()
	l := ingest.NewLoader(pvftest.NewFS(t, s), nil)
	ds, err := l.Load(context.Background(), dataset.Identity{SubjectID: s.ID, MetadataFile: s.MetadataFile()})
	require.NoError(t, err)
	dataset.NewStore().Swap(ds)
	return ds
}

func subject() pvftest.Subject {
	return pvftest.Subject{
		ID:       "sub-001",
		Prefix:   "pvf",
		Dim:      3,
		T:        2,
		DimShift: []int{1, 1, 1},
		Times:    []float64{0, 0.25},
		CondA:    map[string][]float64{"0": {2, 4, 6}},
		Patterns: map[string]any{"0": map[string]any{"critical_points": []any{1}}},
		Windows: map[string]map[string]any{
			ingest.FirstWindowFile: {"0": []any{"window-0"}, "1": []any{"window-1"}},
		},
	}
}

func TestSliceRoundTripsEveryVoxel(t *testing.T) {
	s := subject()
	ds := loaded(t, s)

	for tt := 0; tt < s.T; tt++ {
		p, err := Slice(ds, tt, nil)
		require.NoError(t, err)
		assert.Equal(t, tt, p.TimeIndex)
		for c, f := range []api.Frame{p.Vx, p.Vy, p.Vz} {
			require.Len(t, f, 3)
			for x := 0; x < 3; x++ {
				require.Len(t, f[x], 3)
				for y := 0; y < 3; y++ {
					require.Len(t, f[x][y], 3)
					for z := 0; z < 3; z++ {
						assert.Equal(t, [1]float64{pvftest.Value(c, x, y, z, tt)}, f[x][y][z])
					}
				}
			}
		}
	}
}

func TestSliceConcreteScenario(t *testing.T) {
	s := subject()
	s.Value = func(c, x, y, z, t int) float64 {
		if c == 0 && x == 0 && y == 0 && z == 0 {
			return []float64{10, 20}[t]
		}
		return 0
	}
	ds := loaded(t, s)

	p0, err := Slice(ds, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, [1]float64{10}, p0.Vx[0][0][0])

	p1, err := Slice(ds, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, [1]float64{20}, p1.Vx[0][0][0])

	assert.Equal(t, 3, p1.Dimension)
	assert.Equal(t, 2, p1.NumTimePoints)
}

func TestSliceRejectsOutOfRange(t *testing.T) {
	ds := loaded(t, subject())
	for _, bad := range []int{-1, 2} {
		_, err := Slice(ds, bad, nil)
		require.ErrorIs(t, err, dataset.ErrTimeOutOfRange)
		var re *dataset.RangeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, bad, re.Index)

		_, err = ProjectFrames(ds, bad)
		require.ErrorIs(t, err, dataset.ErrTimeOutOfRange)
		_, err = Arrows(ds, bad)
		require.ErrorIs(t, err, dataset.ErrTimeOutOfRange)
	}
}

func TestSliceConditionNumber(t *testing.T) {
	ds := loaded(t, subject())

	p0, err := Slice(ds, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, p0.ConditionNumber)

	p1, err := Slice(ds, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p1.ConditionNumber)
}

func TestSliceWithoutConditionFile(t *testing.T) {
	s := subject()
	s.CondA = nil
	ds := loaded(t, s)

	for tt := 0; tt < s.T; tt++ {
		p, err := Slice(ds, tt, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, p.ConditionNumber)
	}
}

func TestSlicePatterns(t *testing.T) {
	ds := loaded(t, subject())

	p0, err := Slice(ds, 0, nil)
	require.NoError(t, err)
	assert.True(t, p0.PatternsAvailable)
	assert.Equal(t, map[string]any{"critical_points": []any{int64(1)}}, p0.Patterns)

	p1, err := Slice(ds, 1, nil)
	require.NoError(t, err)
	assert.False(t, p1.PatternsAvailable)
	assert.Nil(t, p1.Patterns)
}

func TestSliceStreamlinePreference(t *testing.T) {
	s := subject()
	s.T = 3
	ds := loaded(t, s)

	p, err := Slice(ds, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, api.StreamlinesWindow, p.StreamlineSource)
	assert.Equal(t, []any{"window-1"}, p.Streamlines)

	ds.Full.Merge(map[int]any{1: []any{"prefetched-1"}})
	p, err = Slice(ds, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, api.StreamlinesPrefetched, p.StreamlineSource)
	assert.Equal(t, []any{"prefetched-1"}, p.Streamlines)

	p, err = Slice(ds, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, api.StreamlinesUnavailable, p.StreamlineSource)
	assert.Nil(t, p.Streamlines)
}

func TestSliceMissingComponent(t *testing.T) {
	s := subject()
	s.Omit = []string{"_Vz.json"}
	ds := loaded(t, s)

	p, err := Slice(ds, 0, nil)
	require.NoError(t, err)
	assert.NotNil(t, p.Vx)
	assert.Nil(t, p.Vz)
}

func TestSliceUsesGivenFrames(t *testing.T) {
	ds := loaded(t, subject())
	frames, err := ProjectFrames(ds, 1)
	require.NoError(t, err)

	p, err := Slice(ds, 1, frames)
	require.NoError(t, err)
	assert.Equal(t, frames.Vy, p.Vy)
	assert.Equal(t, ds.Generation, p.Generation)
	assert.Equal(t, []float64{0, 0.25}, p.Times)
	assert.Equal(t, 27, p.MaskVoxels)
}
