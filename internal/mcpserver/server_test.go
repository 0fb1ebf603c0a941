package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/pvftest"
	"github.com/agentic-research/pvf/internal/service"
)

func newHandlers(t *testing.T) *handlers {
	t.Helper()
	fs := pvftest.NewFS(t,
		pvftest.Subject{
			ID: "sub-001", Prefix: "pvf", Dim: 2, T: 3,
			DimShift: []int{0, 0, 0},
			CondA:    map[string][]float64{"2": {1, 2, 3}},
		},
		pvftest.Subject{ID: "sub-002", Prefix: "pvf", Dim: 2, T: 2, Omit: []string{"_Vz.json"}},
	)
	svc, err := service.New(service.Config{FS: fs})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return &handlers{svc: svc}
}

func call(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := fn(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func decode(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	require.False(t, res.IsError, text(t, res))
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), out))
}

func TestNewRegistersTools(t *testing.T) {
	s := New(newHandlers(t).svc, "test")
	require.NotNil(t, s)
	tools := s.ListTools()
	for _, name := range []string{"list_subjects", "list_subject_files", "load_dataset", "slice_summary", "dataset_status"} {
		assert.Contains(t, tools, name)
	}
}

func TestListing(t *testing.T) {
	h := newHandlers(t)

	var subjects []string
	decode(t, call(t, h.listSubjects, nil), &subjects)
	assert.Equal(t, []string{"sub-001", "sub-002"}, subjects)

	var files []string
	decode(t, call(t, h.listSubjectFiles, map[string]any{"subject": "sub-001"}), &files)
	assert.Equal(t, []string{"pvf_metadata.json"}, files)

	res := call(t, h.listSubjectFiles, nil)
	assert.True(t, res.IsError)
}

func TestLoadAndSummarize(t *testing.T) {
	h := newHandlers(t)

	var ds DatasetSummary
	decode(t, call(t, h.loadDataset, map[string]any{"subject": "sub-001", "file": "pvf_metadata.json"}), &ds)
	assert.Equal(t, "sub-001", ds.SubjectID)
	assert.Equal(t, 2, ds.Dimension)
	assert.Equal(t, 3, ds.NumTimePoints)
	assert.Equal(t, 8, ds.MaskVoxels)
	assert.NotZero(t, ds.Generation)

	var sum SliceSummary
	decode(t, call(t, h.sliceSummary, map[string]any{"subject": "sub-001", "file": "pvf_metadata.json", "timepoint": 2}), &sum)
	assert.Equal(t, 2, sum.TimeIndex)
	assert.Equal(t, 2.0, sum.ConditionNumber)

	vx := sum.Components["Vx"]
	assert.True(t, vx.Loaded)
	assert.Equal(t, pvftest.Value(0, 0, 0, 0, 2), vx.Min)
	assert.Equal(t, pvftest.Value(0, 1, 1, 1, 2), vx.Max)
	assert.InDelta(t, (vx.Min+vx.Max)/2, vx.Mean, 1e-9)

	var st api.Status
	decode(t, call(t, h.status, nil), &st)
	assert.True(t, st.Loaded)
	assert.Equal(t, ds.Generation, st.Generation)
}

func TestMissingComponentSummary(t *testing.T) {
	h := newHandlers(t)

	var ds DatasetSummary
	decode(t, call(t, h.loadDataset, map[string]any{"subject": "sub-002", "file": "pvf_metadata.json"}), &ds)
	assert.NotEmpty(t, ds.Warnings)

	var sum SliceSummary
	decode(t, call(t, h.sliceSummary, map[string]any{"subject": "sub-002", "file": "pvf_metadata.json", "timepoint": 0}), &sum)
	assert.False(t, sum.Components["Vz"].Loaded)
	assert.True(t, sum.Components["Vy"].Loaded)
}

func TestSliceErrors(t *testing.T) {
	h := newHandlers(t)
	call(t, h.loadDataset, map[string]any{"subject": "sub-001", "file": "pvf_metadata.json"})

	res := call(t, h.sliceSummary, map[string]any{"subject": "sub-002", "file": "pvf_metadata.json", "timepoint": 0})
	assert.True(t, res.IsError)

	res = call(t, h.sliceSummary, map[string]any{"subject": "sub-001", "file": "pvf_metadata.json", "timepoint": 3})
	assert.True(t, res.IsError)

	res = call(t, h.sliceSummary, map[string]any{"subject": "sub-001", "file": "pvf_metadata.json"})
	assert.True(t, res.IsError)
}

func TestFrameStats(t *testing.T) {
	assert.Equal(t, FrameStats{}, frameStats(nil))
	assert.Equal(t, FrameStats{Loaded: true}, frameStats(api.Frame{}))

	f := api.Frame{{{{-1}, {3}}}}
	assert.Equal(t, FrameStats{Loaded: true, Min: -1, Max: 3, Mean: 1}, frameStats(f))
}
