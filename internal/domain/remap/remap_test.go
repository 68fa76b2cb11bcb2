package remap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/autocut/internal/domain/timeline"
)

func testPlan() timeline.EditPlan {
	return timeline.NewPlan([]timeline.TimeRange{{Start: 1, End: 3}, {Start: 5, End: 6}, {Start: 8, End: 10}}, 10, nil)
}

func TestRemap(t *testing.T) {
	t.Parallel()

	m := New(testPlan())
	tests := []struct {
		in   float64
		want float64
		ok   bool
	}{
		{in: 0.5, ok: false},
		{in: 1, want: 0, ok: true},
		{in: 2.5, want: 1.5, ok: true},
		{in: 3, ok: false},
		{in: 5.25, want: 2.25, ok: true},
		{in: 9.99, want: 4.99, ok: true},
		{in: 10, ok: false},
	}
	for _, tt := range tests {
		got, ok := m.Remap(tt.in)
		assert.Equal(t, tt.ok, ok, "t=%v", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "t=%v", tt.in)
		}
	}
	assert.InDelta(t, 5.0, m.EditedDuration(), 1e-9)
}

func TestRemapRange(t *testing.T) {
	t.Parallel()

	m := New(testPlan())

	got, ok := m.RemapRange(timeline.TimeRange{Start: 2, End: 2.5})
	require.True(t, ok)
	assert.Equal(t, timeline.TimeRange{Start: 1, End: 1.5}, got)

	got, ok = m.RemapRange(timeline.TimeRange{Start: 5.5, End: 7})
	require.True(t, ok)
	assert.InDelta(t, 2.5, got.Start, 1e-9)
	assert.InDelta(t, 3.0, got.End, 1e-9)

	_, ok = m.RemapRange(timeline.TimeRange{Start: 4, End: 5.5})
	assert.False(t, ok)
}

func TestInverse(t *testing.T) {
	t.Parallel()

	m := New(testPlan())
	for _, orig := range []float64{1, 2.9, 5, 5.5, 8, 9.5} {
		e, ok := m.Remap(orig)
		require.True(t, ok)
		back, ok := m.Inverse(e)
		require.True(t, ok)
		assert.InDelta(t, orig, back, 1e-9)
	}
	_, ok := m.Inverse(5)
	assert.False(t, ok)
	assert.True(t, m.SameSegment(1.1, 2.9))
	assert.False(t, m.SameSegment(2.9, 5.1))
}

func TestRemapMonotonic(t *testing.T) {
	t.Parallel()

	m := New(testPlan())
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		t1 := rng.Float64() * 10
		t2 := t1 + rng.Float64()*(10-t1)
		e1, ok1 := m.Remap(t1)
		e2, ok2 := m.Remap(t2)
		if ok1 && ok2 {
			assert.LessOrEqual(t, e1, e2)
		}
	}
}
