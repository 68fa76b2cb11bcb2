package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// EditPlan is the ordered set of keep-segments over the original timeline.
// Everything outside KeepSegments is removed.
type EditPlan struct {
	KeepSegments     []TimeRange        `json:"keep_segments"`
	OriginalDuration float64            `json:"original_duration"`
	EditedDuration   float64            `json:"edited_duration"`
	RemovalSummary   map[Reason]float64 `json:"removal_summary"`
}

// NewPlan builds a plan from already normalized keeps and fills in the
// edited duration.
func NewPlan(keeps []TimeRange, original float64, summary map[Reason]float64) EditPlan {
	if summary == nil {
		summary = map[Reason]float64{}
	}
	return EditPlan{
		KeepSegments:     keeps,
		OriginalDuration: original,
		EditedDuration:   TotalDuration(keeps),
		RemovalSummary:   summary,
	}
}

// FullPlan keeps the whole timeline.
func FullPlan(original float64) EditPlan {
	return NewPlan([]TimeRange{{Start: 0, End: original}}, original, nil)
}

func (p EditPlan) RemovedRanges() []TimeRange {
	return Complement(p.KeepSegments, p.OriginalDuration)
}

func (p EditPlan) RemovedDuration() float64 {
	return p.OriginalDuration - p.EditedDuration
}

func (p EditPlan) Clone() EditPlan {
	out := p
	out.KeepSegments = append([]TimeRange(nil), p.KeepSegments...)
	out.RemovalSummary = make(map[Reason]float64, len(p.RemovalSummary))
	for k, v := range p.RemovalSummary {
		out.RemovalSummary[k] = v
	}
	return out
}

// SummaryReasons lists the summary keys in a stable order.
func (p EditPlan) SummaryReasons() []Reason {
	out := make([]Reason, 0, len(p.RemovalSummary))
	for r := range p.RemovalSummary {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p EditPlan) Validate() error {
	if p.OriginalDuration <= 0 || math.IsInf(p.OriginalDuration, 0) || math.IsNaN(p.OriginalDuration) {
		return fmt.Errorf("original duration must be > 0, got %v", p.OriginalDuration)
	}
	if len(p.KeepSegments) == 0 {
		return errors.New("plan has no keep segments")
	}
	var sum float64
	for i, k := range p.KeepSegments {
		if !k.Valid() {
			return fmt.Errorf("keep segment %d %s is invalid", i, k)
		}
		if k.End > p.OriginalDuration+eps {
			return fmt.Errorf("keep segment %d %s exceeds duration %.3f", i, k, p.OriginalDuration)
		}
		if i > 0 && p.KeepSegments[i-1].End >= k.Start {
			return fmt.Errorf("keep segments %d and %d overlap or touch", i-1, i)
		}
		sum += k.Duration()
	}
	if math.Abs(sum-p.EditedDuration) > 1e-6 {
		return fmt.Errorf("edited duration %.6f does not match segments total %.6f", p.EditedDuration, sum)
	}
	if p.EditedDuration > p.OriginalDuration+eps {
		return errors.New("edited duration exceeds original duration")
	}
	for r, v := range p.RemovalSummary {
		if !r.Valid() {
			return fmt.Errorf("removal summary: unknown reason %q", r)
		}
		if v < 0 {
			return fmt.Errorf("removal summary: negative duration for %s", r)
		}
	}
	return nil
}
