package classify

import (
	"github.com/forPelevin/autocut/internal/domain/timeline"
)

// MergeTangents appends externally detected tangent spans to spans. Tangent
// ranges are clamped to [0, duration); anything empty after clamping or not
// tagged as a tangent is dropped.
func MergeTangents(spans, tangents []timeline.Span, duration float64) []timeline.Span {
	out := make([]timeline.Span, 0, len(spans)+len(tangents))
	out = append(out, spans...)
	for _, t := range tangents {
		if t.Reason == "" {
			t.Reason = timeline.ReasonTangent
		}
		if t.Reason != timeline.ReasonTangent {
			continue
		}
		rng := t.Range
		if duration > 0 {
			var ok bool
			if rng, ok = rng.Clamp(duration); !ok {
				continue
			}
		}
		if !rng.Valid() {
			continue
		}
		t.Range = rng
		out = append(out, t)
	}
	SortSpans(out)
	return out
}
