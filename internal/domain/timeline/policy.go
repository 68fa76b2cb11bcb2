package timeline

import "errors"

const (
	DefaultMinSilenceGap    = 0.5
	DefaultMinSegmentLength = 0.3
)

// Policy selects which classified spans the planner removes.
type Policy struct {
	RemoveFillers     bool     `json:"remove_fillers"`
	RemoveRepetitions bool     `json:"remove_repetitions"`
	RemoveSilence     bool     `json:"remove_silence"`
	RemoveTangents    bool     `json:"remove_tangents"`
	MinSilenceGap     float64  `json:"min_silence_gap"`
	MinSegmentLength  float64  `json:"min_segment_length"`
	TargetDuration    *float64 `json:"target_duration,omitempty"`
}

// DefaultPolicy removes fillers, repetitions and silence. Tangent removal
// needs an external detector, so it is off unless asked for.
func DefaultPolicy() Policy {
	return Policy{
		RemoveFillers:     true,
		RemoveRepetitions: true,
		RemoveSilence:     true,
		MinSilenceGap:     DefaultMinSilenceGap,
		MinSegmentLength:  DefaultMinSegmentLength,
	}
}

func (p Policy) Enabled(r Reason) bool {
	switch r {
	case ReasonFiller:
		return p.RemoveFillers
	case ReasonRepetition:
		return p.RemoveRepetitions
	case ReasonSilence:
		return p.RemoveSilence
	case ReasonTangent:
		return p.RemoveTangents
	default:
		return false
	}
}

func (p Policy) EnabledReasons() []Reason {
	out := make([]Reason, 0, len(FitPriority))
	for _, r := range FitPriority {
		if p.Enabled(r) {
			out = append(out, r)
		}
	}
	return out
}

// WithTarget returns a copy of p with the target duration set.
func (p Policy) WithTarget(seconds float64) Policy {
	p.TargetDuration = &seconds
	return p
}

func (p Policy) Validate() error {
	if p.MinSilenceGap <= 0 {
		return errors.New("min silence gap must be > 0")
	}
	if p.MinSegmentLength < 0 {
		return errors.New("min segment length must be >= 0")
	}
	if p.TargetDuration != nil && *p.TargetDuration <= 0 {
		return errors.New("target duration must be > 0")
	}
	return nil
}
