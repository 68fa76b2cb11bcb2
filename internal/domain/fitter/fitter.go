// Package fitter trims an EditPlan further until it fits a target duration.
package fitter

import (
	"errors"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/domain/timeline"
)

const eps = 1e-9

// Fitter gives up classified content in timeline.FitPriority order. Spans of
// reasons the policy left disabled are still eligible: hitting the target
// takes precedence over the policy toggles.
type Fitter struct {
	spans  []timeline.Span
	policy timeline.Policy
}

func New(spans []timeline.Span, policy timeline.Policy) *Fitter {
	return &Fitter{spans: spans, policy: policy}
}

// Fit returns plan unchanged when it already fits target. Otherwise it
// removes candidate content until the edited duration is at most target.
// When that is impossible it returns the shortest plan it reached together
// with an *apperr.LengthFitError. Fit is idempotent for a fixed target.
func (f *Fitter) Fit(plan timeline.EditPlan, target float64) (timeline.EditPlan, error) {
	if target <= 0 || math.IsNaN(target) {
		return plan, errors.New("target duration must be > 0")
	}
	if plan.EditedDuration <= target+eps {
		return plan, nil
	}

	minSeg := f.policy.MinSegmentLength
	cands := f.candidates(plan.OriginalDuration)
	keeps := append([]timeline.TimeRange(nil), plan.KeepSegments...)
	edited := timeline.TotalDuration(keeps)
	used := map[timeline.Reason]bool{}

	// Removing one span can widen a gap enough that an earlier rejected
	// neighbour becomes worth cutting, so sweep until nothing changes.
	for changed := true; changed && edited > target+eps; {
		changed = false
		for _, c := range cands {
			if edited <= target+eps {
				break
			}
			cut := timeline.Intersection([]timeline.TimeRange{c.Range}, keeps)
			if len(cut) == 0 {
				continue
			}
			if c.Reason == timeline.ReasonSilence {
				cut = shrinkSilence(cut, edited-target, minSeg)
			}

			next := timeline.Normalize(timeline.Subtract(keeps, cut), minSeg)
			if len(next) == 0 {
				continue
			}
			nextEdited := timeline.TotalDuration(next)
			if nextEdited >= edited-eps {
				continue
			}
			keeps, edited = next, nextEdited
			used[c.Reason] = true
			changed = true
		}
	}

	if len(used) == 0 {
		return plan, &apperr.LengthFitError{Target: target, Achieved: plan.EditedDuration}
	}

	attributed := lo.Filter(f.spans, func(s timeline.Span, _ int) bool {
		return f.policy.Enabled(s.Reason) || used[s.Reason]
	})
	out := timeline.NewPlan(keeps, plan.OriginalDuration, timeline.Summarize(clamp(attributed, plan.OriginalDuration), keeps, plan.OriginalDuration))
	if out.EditedDuration > target+eps {
		return out, &apperr.LengthFitError{Target: target, Achieved: out.EditedDuration}
	}
	return out, nil
}

// candidates orders spans by reason priority, then by score (highest first),
// then longest first, then by start.
func (f *Fitter) candidates(total float64) []timeline.Span {
	rank := make(map[timeline.Reason]int, len(timeline.FitPriority))
	for i, r := range timeline.FitPriority {
		rank[r] = i
	}
	out := lo.Filter(clamp(f.spans, total), func(s timeline.Span, _ int) bool {
		_, ok := rank[s.Reason]
		return ok
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if rank[a.Reason] != rank[b.Reason] {
			return rank[a.Reason] < rank[b.Reason]
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Range.Duration() != b.Range.Duration() {
			return a.Range.Duration() > b.Range.Duration()
		}
		return a.Range.Start < b.Range.Start
	})
	return out
}

// shrinkSilence cuts only as much of a silence as is still needed, centered
// so equal padding stays on both sides. The cut is never narrower than
// minSeg.
func shrinkSilence(portions []timeline.TimeRange, need, minSeg float64) []timeline.TimeRange {
	longest := lo.MaxBy(portions, func(a, b timeline.TimeRange) bool { return a.Duration() > b.Duration() })
	width := math.Max(need, minSeg)
	if longest.Duration() <= width {
		return portions
	}
	mid := (longest.Start + longest.End) / 2
	return []timeline.TimeRange{{Start: mid - width/2, End: mid + width/2}}
}

func clamp(spans []timeline.Span, total float64) []timeline.Span {
	return lo.FilterMap(spans, func(s timeline.Span, _ int) (timeline.Span, bool) {
		rng, ok := s.Range.Clamp(total)
		s.Range = rng
		return s, ok
	})
}
