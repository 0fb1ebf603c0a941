package ingest

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// DefaultDimShift applies when neither an override nor the metadata file
// provides a dim shift.
var DefaultDimShift = [3]int{25, 25, 25}

// Overrides maps subject id to a dim shift that replaces the one in the
// subject's metadata. The entries correct acquisition-pipeline quirks and are
// kept out of the metadata schema.
type Overrides map[string][3]int

// DefaultOverrides returns the built-in override table.
func DefaultOverrides() Overrides {
	return Overrides{
		"sub-003": {25, 25, 20},
		"sub-005": {25, 25, 17},
	}
}

// Lookup returns the override for subjectID.
func (o Overrides) Lookup(subjectID string) ([3]int, bool) {
	s, ok := o[subjectID]
	return s, ok
}

type overrideFile struct {
	Subjects []overrideBlock `hcl:"subject,block"`
}

type overrideBlock struct {
	ID       string `hcl:"id,label"`
	DimShift []int  `hcl:"dim_shift"`
}

// ParseOverrides decodes an override file. The extension of filename selects
// HCL native syntax (.hcl) or HCL JSON (.json):
//
//	subject "sub-003" {
//	  dim_shift = [25, 25, 20]
//	}
func ParseOverrides(filename string, src []byte) (Overrides, error) {
	var f overrideFile
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}
	out := make(Overrides, len(f.Subjects))
	for _, b := range f.Subjects {
		if len(b.DimShift) != 3 {
			return nil, fmt.Errorf("subject %q: dim_shift needs 3 values, got %d", b.ID, len(b.DimShift))
		}
		if _, dup := out[b.ID]; dup {
			return nil, fmt.Errorf("subject %q declared twice", b.ID)
		}
		out[b.ID] = [3]int{b.DimShift[0], b.DimShift[1], b.DimShift[2]}
	}
	return out, nil
}

// LoadOverrides reads path and merges its entries over the built-in table.
// A missing file yields the built-in table unchanged.
func LoadOverrides(path string) (Overrides, error) {
	table := DefaultOverrides()
	if path == "" {
		return table, nil
	}
	src, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	parsed, err := ParseOverrides(path, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for id, shift := range parsed {
		table[id] = shift
	}
	return table, nil
}
