// Package mcpserver exposes dataset browsing and slice summaries as MCP
// tools, so agents can inspect PVF data without pulling full volumes.
package mcpserver

import (
	"context"
	"encoding/json"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/pvf/api"
	"github.com/agentic-research/pvf/internal/service"
)

// New builds the MCP server with every tool registered against svc.
func New(svc *service.Service, version string) *server.MCPServer {
	s := server.NewMCPServer("pvf", version, server.WithToolCapabilities(false))
	h := &handlers{svc: svc}

	s.AddTool(mcp.NewTool("list_subjects",
		mcp.WithDescription("List subject directories under the data root"),
	), h.listSubjects)

	s.AddTool(mcp.NewTool("list_subject_files",
		mcp.WithDescription("List the metadata files of a subject"),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject directory, e.g. sub-001")),
	), h.listSubjectFiles)

	s.AddTool(mcp.NewTool("load_dataset",
		mcp.WithDescription("Make a subject's dataset active; a no-op when it already is"),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject directory")),
		mcp.WithString("file", mcp.Required(), mcp.Description("Metadata file, e.g. pvf_metadata.json")),
	), h.loadDataset)

	s.AddTool(mcp.NewTool("slice_summary",
		mcp.WithDescription("Summarize one time slice of the active dataset: per-component min/max/mean, condition number, streamline availability"),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject directory")),
		mcp.WithString("file", mcp.Required(), mcp.Description("Metadata file")),
		mcp.WithNumber("timepoint", mcp.Required(), mcp.Description("Zero-based time index")),
	), h.sliceSummary)

	s.AddTool(mcp.NewTool("dataset_status",
		mcp.WithDescription("Describe the active dataset and its streamline prefetch"),
	), h.status)

	return s
}

// ServeStdio serves s over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

type handlers struct {
	svc *service.Service
}

// DatasetSummary is the load_dataset result.
type DatasetSummary struct {
	SubjectID     string   `json:"subject_ID"`
	MetadataFile  string   `json:"file"`
	Generation    uint64   `json:"generation"`
	Dimension     int      `json:"PVF_dimension"`
	NumTimePoints int      `json:"PVF_num_time_points"`
	MaskVoxels    int      `json:"mask_voxels"`
	Warnings      []string `json:"warnings,omitempty"`
}

// FrameStats summarizes one velocity component at one time index.
type FrameStats struct {
	Loaded bool    `json:"loaded"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// SliceSummary is the slice_summary result.
type SliceSummary struct {
	TimeIndex         int                   `json:"timepoint"`
	Components        map[string]FrameStats `json:"components"`
	ConditionNumber   float64               `json:"condA"`
	PatternsAvailable bool                  `json:"patterns_available"`
	StreamlineSource  api.StreamlineSource  `json:"streamline_source"`
}

func (h *handlers) listSubjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjects, err := h.svc.ListSubjects()
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list subjects", err), nil
	}
	return jsonResult(subjects)
}

func (h *handlers) listSubjectFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := h.svc.ListSubjectFiles(subject)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list subject files", err), nil
	}
	return jsonResult(files)
}

func (h *handlers) loadDataset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	file, err := req.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := h.svc.LoadDataset(ctx, subject, file)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("load dataset", err), nil
	}
	return jsonResult(DatasetSummary{
		SubjectID:     p.SubjectID,
		MetadataFile:  p.MetadataFile,
		Generation:    p.Generation,
		Dimension:     p.Dimension,
		NumTimePoints: p.NumTimePoints,
		MaskVoxels:    p.MaskVoxels,
		Warnings:      p.Warnings,
	})
}

func (h *handlers) sliceSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	file, err := req.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := req.RequireInt("timepoint")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := h.svc.GetSlice(subject, file, t)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("slice", err), nil
	}
	return jsonResult(SliceSummary{
		TimeIndex: p.TimeIndex,
		Components: map[string]FrameStats{
			"Vx": frameStats(p.Vx),
			"Vy": frameStats(p.Vy),
			"Vz": frameStats(p.Vz),
		},
		ConditionNumber:   p.ConditionNumber,
		PatternsAvailable: p.PatternsAvailable,
		StreamlineSource:  p.StreamlineSource,
	})
}

func (h *handlers) status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.svc.Status())
}

func frameStats(f api.Frame) FrameStats {
	if f == nil {
		return FrameStats{}
	}
	st := FrameStats{Loaded: true, Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	var n int
	for _, plane := range f {
		for _, row := range plane {
			for _, v := range row {
				st.Min = min(st.Min, v[0])
				st.Max = max(st.Max, v[0])
				sum += v[0]
				n++
			}
		}
	}
	if n == 0 {
		return FrameStats{Loaded: true}
	}
	st.Mean = sum / float64(n)
	return st
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
