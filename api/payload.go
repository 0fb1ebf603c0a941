package api

// Frame is one scalar volume at a single time index, indexed [x][y][z].
// Every voxel carries a one-element time series so that single-slice
// responses keep the same nesting depth as multi-time responses.
type Frame [][][][1]float64

// StreamlineSource reports which cache answered a streamline lookup.
type StreamlineSource string

const (
	// StreamlinesPrefetched means the entry came from the full corpus cache.
	StreamlinesPrefetched StreamlineSource = "prefetch"
	// StreamlinesWindow means the entry came from the first-window cache loaded with the dataset.
	StreamlinesWindow StreamlineSource = "window"
	// StreamlinesUnavailable means neither cache holds the time index (yet).
	StreamlinesUnavailable StreamlineSource = "unavailable"
)

// SlicePayload is the response for a dataset load or a time-slice request.
// Field names follow the viewer's existing wire format.
type SlicePayload struct {
	SubjectID     string    `json:"subject_ID"`
	MetadataFile  string    `json:"file"`
	Generation    uint64    `json:"generation"`
	VolumeMask    any       `json:"volume_mask"`
	MaskVoxels    int       `json:"mask_voxels"`
	Dimension     int       `json:"PVF_dimension"`
	NumTimePoints int       `json:"PVF_num_time_points"`
	Times         []float64 `json:"times,omitempty"`
	TimeIndex     int       `json:"timepoint"`

	// Vx, Vy, Vz are nil when the component volume was not loaded.
	Vx Frame `json:"Vx"`
	Vy Frame `json:"Vy"`
	Vz Frame `json:"Vz"`

	ConditionNumber float64 `json:"condA"`

	// Patterns is passed through untouched; nil with PatternsAvailable=false
	// means the pattern file has no entry for this time index.
	Patterns          any  `json:"patterns"`
	PatternsAvailable bool `json:"patterns_available"`

	Streamlines      any              `json:"streamlines"`
	StreamlineSource StreamlineSource `json:"streamline_source"`

	// Warnings lists auxiliary files that failed to load (load responses only).
	Warnings []string `json:"warnings,omitempty"`
}

// Arrows is the masked vector-glyph projection of one time index.
// Positions are physical coordinates: (index - dim shift) * ArrowScale.
type Arrows struct {
	SubjectID       string        `json:"subject_ID"`
	TimeIndex       int           `json:"timepoint"`
	DimShift        [3]int        `json:"dim_shift"`
	Positions       [][3]float64  `json:"pvf_positions"`
	Directions      [][3]float64  `json:"pvf_directions"`
	Streamlines     [][][]float64 `json:"streamlines"`
	Times           []float64     `json:"times,omitempty"`
	ConditionNumber float64       `json:"condA"`
}

// PrefetchStatus describes the background streamline corpus load.
type PrefetchStatus struct {
	TaskID     string `json:"task_id"`
	Generation uint64 `json:"generation"`
	Source     string `json:"source"`
	Windows    int    `json:"windows"`
	Loaded     int    `json:"loaded"`
	Failed     int    `json:"failed"`
	Entries    int    `json:"entries"`
	Done       bool   `json:"done"`
	Discarded  bool   `json:"discarded"`
}

// Status is the process-wide view of the active dataset.
type Status struct {
	Loaded        bool            `json:"loaded"`
	SubjectID     string          `json:"subject_ID,omitempty"`
	MetadataFile  string          `json:"file,omitempty"`
	Generation    uint64          `json:"generation"`
	Dimension     int             `json:"PVF_dimension,omitempty"`
	NumTimePoints int             `json:"PVF_num_time_points,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	Prefetch      *PrefetchStatus `json:"prefetch,omitempty"`
}
