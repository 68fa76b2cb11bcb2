// Package planner turns classified spans and a removal policy into an
// EditPlan over the original timeline.
package planner

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

// Plan removes every span whose reason the policy enables and returns the
// remaining keep-segments. When originalDuration is not positive the
// transcript duration (or its last word end) is used instead.
func Plan(tr types.Transcript, spans []timeline.Span, policy timeline.Policy, originalDuration float64) (timeline.EditPlan, error) {
	if err := policy.Validate(); err != nil {
		return timeline.EditPlan{}, apperr.Wrap(apperr.KindPlanning, "invalid policy", err)
	}
	total := resolveDuration(tr, originalDuration)
	if total <= 0 {
		return timeline.EditPlan{}, apperr.New(apperr.KindPlanning, "original duration is unknown")
	}

	enabled := Enabled(spans, policy, total)
	if len(enabled) == 0 {
		return timeline.FullPlan(total), nil
	}

	removed := timeline.Union(lo.Map(enabled, func(s timeline.Span, _ int) timeline.TimeRange { return s.Range }))
	keeps := timeline.Normalize(timeline.Complement(removed, total), policy.MinSegmentLength)
	if len(keeps) == 0 {
		return timeline.EditPlan{}, apperr.Wrap(apperr.KindPlanning, fmt.Sprintf("%d spans cover %.2fs", len(enabled), total), apperr.ErrEmptyResult).
			WithRange(timeline.TimeRange{Start: 0, End: total})
	}

	return timeline.NewPlan(keeps, total, timeline.Summarize(enabled, keeps, total)), nil
}

// Enabled keeps the spans whose reason the policy turns on, clamped to
// [0, total).
func Enabled(spans []timeline.Span, policy timeline.Policy, total float64) []timeline.Span {
	return lo.FilterMap(spans, func(s timeline.Span, _ int) (timeline.Span, bool) {
		if !policy.Enabled(s.Reason) {
			return s, false
		}
		rng, ok := s.Range.Clamp(total)
		s.Range = rng
		return s, ok
	})
}

func resolveDuration(tr types.Transcript, d float64) float64 {
	if d > 0 {
		return d
	}
	if tr.Duration > 0 {
		return tr.Duration
	}
	if len(tr.Words) > 0 {
		return lo.MaxBy(tr.Words, func(a, b types.Word) bool { return a.End > b.End }).End
	}
	return 0
}
