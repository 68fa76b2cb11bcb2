// Package timeline holds the value types shared by every planning stage:
// half-open time ranges over the original recording, classified removal
// spans, the removal policy and the resulting edit plan.
package timeline

import (
	"fmt"
	"math"
)

// TimeRange is the half-open interval [Start, End) in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r TimeRange) Duration() float64 { return r.End - r.Start }

func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.End > r.Start && !math.IsInf(r.End, 0) && !math.IsNaN(r.Start) && !math.IsNaN(r.End)
}

func (r TimeRange) Contains(t float64) bool { return t >= r.Start && t < r.End }

func (r TimeRange) Overlaps(o TimeRange) bool { return r.Start < o.End && o.Start < r.End }

func (r TimeRange) Intersect(o TimeRange) (TimeRange, bool) {
	out := TimeRange{Start: math.Max(r.Start, o.Start), End: math.Min(r.End, o.End)}
	return out, out.End > out.Start
}

// Clamp restricts r to [0, total). The second result is false when nothing
// of r is left.
func (r TimeRange) Clamp(total float64) (TimeRange, bool) {
	return r.Intersect(TimeRange{Start: 0, End: total})
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%.3f, %.3f)", r.Start, r.End)
}

type Reason string

const (
	ReasonFiller     Reason = "filler"
	ReasonRepetition Reason = "repetition"
	ReasonSilence    Reason = "silence"
	ReasonTangent    Reason = "tangent"
)

// FitPriority is the order in which the length fitter gives content up:
// silence costs the least to remove, tangents the most.
var FitPriority = []Reason{ReasonSilence, ReasonFiller, ReasonRepetition, ReasonTangent}

func (r Reason) Valid() bool {
	switch r {
	case ReasonFiller, ReasonRepetition, ReasonSilence, ReasonTangent:
		return true
	default:
		return false
	}
}

func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown removal reason %q", s)
	}
	return r, nil
}

// Span is a candidate region for removal. SourceWords indexes into the
// transcript word list; it is empty for silence and for external spans.
type Span struct {
	Range       TimeRange `json:"range"`
	Reason      Reason    `json:"reason"`
	SourceWords []int     `json:"source_words,omitempty"`
	Score       float64   `json:"score"`
}
