// Package tangentfile reads user-supplied tangent ranges from a JSON file,
// for runs where tangents were marked by hand or by an external tool.
package tangentfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

// Detector returns the ranges listed in Path. The file is a JSON array whose
// items are either spans ({"range":{"start":..,"end":..},"score":..}) or the
// flat form {"start":..,"end":..,"score":..}.
type Detector struct {
	Path string
}

func New(path string) *Detector { return &Detector{Path: path} }

type entry struct {
	timeline.Span
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

func (d *Detector) DetectTangents(ctx context.Context, tr types.Transcript) ([]timeline.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read tangents file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) ([]timeline.Span, error) {
	var entries []entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode tangents: %w", err)
	}
	out := make([]timeline.Span, 0, len(entries))
	for i, e := range entries {
		sp := e.Span
		if e.Start != nil || e.End != nil {
			if e.Start == nil || e.End == nil {
				return nil, fmt.Errorf("tangent %d: start and end must both be set", i)
			}
			sp.Range = timeline.TimeRange{Start: *e.Start, End: *e.End}
		}
		switch sp.Reason {
		case "":
			sp.Reason = timeline.ReasonTangent
		case timeline.ReasonTangent:
		default:
			return nil, fmt.Errorf("tangent %d: reason %q is not %q", i, sp.Reason, timeline.ReasonTangent)
		}
		if !sp.Range.Valid() {
			return nil, fmt.Errorf("tangent %d: invalid range %s", i, sp.Range)
		}
		if sp.Score <= 0 || sp.Score > 1 {
			sp.Score = 1
		}
		out = append(out, sp)
	}
	return out, nil
}
