package subtitles

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/autocut/internal/domain/remap"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

func seq(start, step float64, toks ...string) []types.Word {
	out := make([]types.Word, 0, len(toks))
	for i, t := range toks {
		s := start + float64(i)*step
		out = append(out, types.Word{Text: t, Start: s, End: s + step*0.9, Confidence: 1})
	}
	return out
}

func TestBuildCuesLineBudget(t *testing.T) {
	t.Parallel()

	ws := seq(0, 0.3, strings.Fields("the quick brown fox jumps over the lazy dog and keeps running through the forest until night falls")...)
	cues := BuildCues(ws, nil, DefaultOptions())

	require.NotEmpty(t, cues)
	for i, c := range cues {
		assert.Equal(t, i+1, c.Index)
		lines := strings.Split(c.Text, "\n")
		assert.LessOrEqual(t, len(lines), 2)
		for _, ln := range lines {
			assert.LessOrEqual(t, len([]rune(ln)), 42, "line %q", ln)
		}
		assert.Less(t, c.Start, c.End)
		if i > 0 {
			assert.LessOrEqual(t, cues[i-1].End, c.Start)
		}
	}
	assert.Equal(t, "the quick brown fox jumps over the lazy\ndog and keeps running through the forest", cues[0].Text)
	assert.Equal(t, "until night falls", cues[1].Text)
}

func TestBuildCuesRemapsAndSplitsAtCuts(t *testing.T) {
	t.Parallel()

	ws := []types.Word{
		{Text: "keep", Start: 0.0, End: 0.5},
		{Text: "this", Start: 0.5, End: 1.2},
		{Text: "um", Start: 2.0, End: 2.4},
		{Text: "and", Start: 3.0, End: 3.4},
		{Text: "that", Start: 3.4, End: 3.8},
	}
	plan := timeline.NewPlan([]timeline.TimeRange{{Start: 0, End: 1.0}, {Start: 3.0, End: 4.0}}, 4, nil)

	cues := BuildCues(ws, remap.New(plan), DefaultOptions())
	require.Len(t, cues, 2)

	assert.Equal(t, "keep this", cues[0].Text)
	assert.InDelta(t, 0.0, cues[0].Start, 1e-9)
	assert.InDelta(t, 1.0, cues[0].End, 1e-9) // "this" truncated at the cut

	assert.Equal(t, "and that", cues[1].Text)
	assert.InDelta(t, 1.0, cues[1].Start, 1e-9)
	assert.InDelta(t, 1.8, cues[1].End, 1e-9)
}

func TestBuildCuesSplitsOnPauseAndDuration(t *testing.T) {
	t.Parallel()

	ws := []types.Word{
		{Text: "one", Start: 0, End: 0.4},
		{Text: "two", Start: 2.0, End: 2.4},
		{Text: "three", Start: 2.4, End: 9.9},
	}
	cues := BuildCues(ws, nil, DefaultOptions())
	require.Len(t, cues, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{cues[0].Text, cues[1].Text, cues[2].Text})
}

func TestWriteSRT(t *testing.T) {
	t.Parallel()

	cues := []Cue{
		{Index: 1, Start: 0, End: 1.5, Text: "hello"},
		{Index: 2, Start: 3661.0006, End: 3662.9999, Text: "two\nlines"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSRT(&buf, cues))

	want := "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n2\n01:01:01,001 --> 01:01:03,000\ntwo\nlines\n"
	assert.Equal(t, want, buf.String())
}

func TestFormatSRTTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00:00:00,000", FormatSRTTime(-1))
	assert.Equal(t, "00:01:30,250", FormatSRTTime(90.25))
	assert.Equal(t, "10:00:00,000", FormatSRTTime(36000))
}

func TestWriteTranscriptSRT(t *testing.T) {
	t.Parallel()

	ws := []types.Word{
		{Text: "hello", Start: 0, End: 0.5},
		{Text: "world", Start: 0.6, End: 1},
		{Text: "again", Start: 5, End: 5.5},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTranscriptSRT(&buf, ws, DefaultOptions()))

	want := "1\n00:00:00,000 --> 00:00:01,000\nhello world\n\n2\n00:00:05,000 --> 00:00:05,500\nagain\n"
	assert.Equal(t, want, buf.String())
}
