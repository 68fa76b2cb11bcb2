package timeline

import (
	"math"
	"sort"
)

// eps absorbs float noise when comparing durations against thresholds.
const eps = 1e-9

// Union merges overlapping or touching ranges into a sorted disjoint set.
// Invalid ranges are dropped.
func Union(ranges []TimeRange) []TimeRange {
	in := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			in = append(in, r)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start == in[j].Start {
			return in[i].End < in[j].End
		}
		return in[i].Start < in[j].Start
	})

	out := []TimeRange{in[0]}
	for _, r := range in[1:] {
		cur := &out[len(out)-1]
		if r.Start <= cur.End {
			cur.End = math.Max(cur.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Subtract returns the parts of a not covered by b.
func Subtract(a, b []TimeRange) []TimeRange {
	cut := Union(b)
	var out []TimeRange
	for _, r := range Union(a) {
		cur := r.Start
		for _, c := range cut {
			if c.End <= cur {
				continue
			}
			if c.Start >= r.End {
				break
			}
			if c.Start > cur {
				out = append(out, TimeRange{Start: cur, End: c.Start})
			}
			cur = c.End
			if cur >= r.End {
				break
			}
		}
		if cur < r.End {
			out = append(out, TimeRange{Start: cur, End: r.End})
		}
	}
	return out
}

// Complement returns the parts of [0, total) not covered by removed.
func Complement(removed []TimeRange, total float64) []TimeRange {
	if total <= 0 {
		return nil
	}
	return Subtract([]TimeRange{{Start: 0, End: total}}, removed)
}

// Intersection returns the ranges covered by both a and b.
func Intersection(a, b []TimeRange) []TimeRange {
	x, y := Union(a), Union(b)
	var out []TimeRange
	for i, j := 0, 0; i < len(x) && j < len(y); {
		if r, ok := x[i].Intersect(y[j]); ok {
			out = append(out, r)
		}
		if x[i].End < y[j].End {
			i++
		} else {
			j++
		}
	}
	return out
}

func TotalDuration(ranges []TimeRange) float64 {
	var sum float64
	for _, r := range ranges {
		sum += r.Duration()
	}
	return sum
}

// JoinGap is the widest gap between keeps that Normalize treats as float
// noise and closes. Any wider gap is removed content and stays removed.
const JoinGap = 1e-3

// Normalize enforces the keep-segment shape rules for a minimum segment
// length: keeps separated by less than JoinGap are joined, then keeps shorter
// than minSeg are dropped (their time becomes removed). Gaps left by removal
// spans are never closed, however short. Dropping only widens gaps, so a
// single pass reaches a fixed point.
func Normalize(keeps []TimeRange, minSeg float64) []TimeRange {
	keeps = Union(keeps)
	if len(keeps) == 0 {
		return keeps
	}

	joined := make([]TimeRange, 0, len(keeps))
	for _, k := range keeps {
		if n := len(joined); n > 0 && k.Start-joined[n-1].End < JoinGap {
			joined[n-1].End = k.End
			continue
		}
		joined = append(joined, k)
	}
	if minSeg <= 0 {
		return joined
	}

	out := joined[:0]
	for _, k := range joined {
		if k.Duration() >= minSeg-eps {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
