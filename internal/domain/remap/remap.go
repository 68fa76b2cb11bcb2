// Package remap converts timestamps between the original recording and the
// edited output described by an EditPlan.
package remap

import (
	"sort"

	"github.com/forPelevin/autocut/internal/domain/timeline"
)

// Remapper answers original -> edited lookups in O(log n).
type Remapper struct {
	keeps []timeline.TimeRange
	// offsets[i] is the edited time at which keeps[i] starts.
	offsets []float64
	edited  float64
}

func New(plan timeline.EditPlan) *Remapper {
	keeps := append([]timeline.TimeRange(nil), plan.KeepSegments...)
	offsets := make([]float64, len(keeps))
	var acc float64
	for i, k := range keeps {
		offsets[i] = acc
		acc += k.Duration()
	}
	return &Remapper{keeps: keeps, offsets: offsets, edited: acc}
}

func (m *Remapper) EditedDuration() float64 { return m.edited }

// Remap returns the edited time of original instant t, or false if t falls
// in a removed region.
func (m *Remapper) Remap(t float64) (float64, bool) {
	i := m.segmentAt(t)
	if i < 0 {
		return 0, false
	}
	return m.offsets[i] + (t - m.keeps[i].Start), true
}

// RemapRange maps r onto the edited timeline. A range whose start was removed
// is dropped; one whose end runs past the enclosing keep-segment is
// truncated to that segment's end.
func (m *Remapper) RemapRange(r timeline.TimeRange) (timeline.TimeRange, bool) {
	i := m.segmentAt(r.Start)
	if i < 0 {
		return timeline.TimeRange{}, false
	}
	k := m.keeps[i]
	end := r.End
	if end > k.End {
		end = k.End
	}
	out := timeline.TimeRange{
		Start: m.offsets[i] + (r.Start - k.Start),
		End:   m.offsets[i] + (end - k.Start),
	}
	return out, out.End > out.Start
}

// SameSegment reports whether two original instants lie in the same
// keep-segment, i.e. no cut separates them in the output.
func (m *Remapper) SameSegment(a, b float64) bool {
	i := m.segmentAt(a)
	return i >= 0 && i == m.segmentAt(b)
}

// Inverse maps an edited instant back to the original timeline.
func (m *Remapper) Inverse(e float64) (float64, bool) {
	if e < 0 || e >= m.edited {
		return 0, false
	}
	i := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] > e }) - 1
	if i < 0 {
		return 0, false
	}
	return m.keeps[i].Start + (e - m.offsets[i]), true
}

func (m *Remapper) segmentAt(t float64) int {
	i := sort.Search(len(m.keeps), func(i int) bool { return m.keeps[i].End > t })
	if i == len(m.keeps) || !m.keeps[i].Contains(t) {
		return -1
	}
	return i
}
