package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

// words lays out tokens back to back, 0.4s each, starting at start.
func words(start float64, toks ...string) []types.Word {
	out := make([]types.Word, 0, len(toks))
	at := start
	for _, t := range toks {
		out = append(out, types.Word{Text: t, Start: at, End: at + 0.4, Confidence: 1})
		at += 0.4
	}
	return out
}

func byReason(spans []timeline.Span, r timeline.Reason) []timeline.Span {
	var out []timeline.Span
	for _, s := range spans {
		if s.Reason == r {
			out = append(out, s)
		}
	}
	return out
}

func TestFillers(t *testing.T) {
	t.Parallel()

	ws := words(0, "So,", "um", "uh", "we", "you", "know", "shipped", "it")
	ws[7].End = ws[7].Start + 1.5 // "it" is long but not a filler anyway
	c := New(DefaultOptions())

	spans := byReason(c.Classify(types.Transcript{Words: ws}, types.MediaInfo{Duration: 4}), timeline.ReasonFiller)
	require.Len(t, spans, 2)

	assert.Equal(t, []int{0, 1, 2}, spans[0].SourceWords)
	assert.InDelta(t, 0.0, spans[0].Range.Start, 1e-9)
	assert.InDelta(t, 1.2, spans[0].Range.End, 1e-9)
	assert.InDelta(t, 0.9, spans[0].Score, 1e-9)

	assert.Equal(t, []int{4, 5}, spans[1].SourceWords)
}

func TestFillersRespectDuration(t *testing.T) {
	t.Parallel()

	ws := []types.Word{
		{Text: "um", Start: 0, End: 1.2},
		{Text: "hello", Start: 1.2, End: 1.6},
	}
	spans := byReason(New(DefaultOptions()).Classify(types.Transcript{Words: ws}, types.MediaInfo{Duration: 2}), timeline.ReasonFiller)
	assert.Empty(t, spans)
}

func TestRepetitionPrefersLongestRun(t *testing.T) {
	t.Parallel()

	ws := words(0, "we", "need", "to", "we", "need", "to", "ship")
	spans := byReason(New(DefaultOptions()).Classify(types.Transcript{Words: ws}, types.MediaInfo{Duration: 3}), timeline.ReasonRepetition)

	require.Len(t, spans, 1)
	assert.Equal(t, []int{3, 4, 5}, spans[0].SourceWords)
	assert.InDelta(t, 1.2, spans[0].Range.Start, 1e-9)
	assert.InDelta(t, 2.4, spans[0].Range.End, 1e-9)
}

func TestRepetitionStutter(t *testing.T) {
	t.Parallel()

	ws := words(0, "the", "The", "the.", "plan")
	spans := byReason(New(DefaultOptions()).Classify(types.Transcript{Words: ws}, types.MediaInfo{Duration: 2}), timeline.ReasonRepetition)

	require.Len(t, spans, 2)
	assert.Equal(t, []int{1}, spans[0].SourceWords)
	assert.Equal(t, []int{2}, spans[1].SourceWords)
}

func TestRepetitionFuzzy(t *testing.T) {
	t.Parallel()

	ws := words(0, "deployment", "deploymnt", "works")

	exact := byReason(New(DefaultOptions()).Classify(types.Transcript{Words: ws}, types.MediaInfo{}), timeline.ReasonRepetition)
	assert.Empty(t, exact)

	opts := DefaultOptions()
	opts.FuzzyDistance = 1
	fuzzy := byReason(New(opts).Classify(types.Transcript{Words: ws}, types.MediaInfo{}), timeline.ReasonRepetition)
	require.Len(t, fuzzy, 1)
	assert.Equal(t, []int{1}, fuzzy[0].SourceWords)
}

func TestSilence(t *testing.T) {
	t.Parallel()

	ws := []types.Word{
		{Text: "hello", Start: 2.0, End: 2.5},
		{Text: "there", Start: 2.6, End: 3.0},
		{Text: "again", Start: 5.0, End: 5.5},
	}
	spans := byReason(New(DefaultOptions()).Classify(types.Transcript{Words: ws}, types.MediaInfo{Duration: 8}), timeline.ReasonSilence)

	require.Len(t, spans, 3)
	want := []timeline.TimeRange{{Start: 0, End: 1.75}, {Start: 3.25, End: 4.75}, {Start: 5.75, End: 8}}
	for i, w := range want {
		assert.InDelta(t, w.Start, spans[i].Range.Start, 1e-9)
		assert.InDelta(t, w.End, spans[i].Range.End, 1e-9)
		assert.Empty(t, spans[i].SourceWords)
	}
}

func TestSilenceNoWords(t *testing.T) {
	t.Parallel()

	spans := New(DefaultOptions()).Classify(types.Transcript{}, types.MediaInfo{Duration: 3})
	require.Len(t, spans, 1)
	assert.Equal(t, timeline.ReasonSilence, spans[0].Reason)
	assert.Equal(t, timeline.TimeRange{Start: 0, End: 3}, spans[0].Range)
}

func TestScoreScalesWithConfidence(t *testing.T) {
	t.Parallel()

	ws := []types.Word{{Text: "um", Start: 0, End: 0.3, Confidence: 0.5}, {Text: "yes", Start: 0.3, End: 0.6, Confidence: 1}}
	spans := byReason(New(DefaultOptions()).Classify(types.Transcript{Words: ws}, types.MediaInfo{Duration: 0.6}), timeline.ReasonFiller)
	require.Len(t, spans, 1)
	assert.InDelta(t, 0.45, spans[0].Score, 1e-9)
}

func TestMergeTangents(t *testing.T) {
	t.Parallel()

	spans := []timeline.Span{{Range: timeline.TimeRange{Start: 5, End: 6}, Reason: timeline.ReasonSilence}}
	tangents := []timeline.Span{
		{Range: timeline.TimeRange{Start: 8, End: 12}, Score: 0.7},
		{Range: timeline.TimeRange{Start: 1, End: 2}, Reason: timeline.ReasonTangent},
		{Range: timeline.TimeRange{Start: 11, End: 13}, Reason: timeline.ReasonTangent},
		{Range: timeline.TimeRange{Start: 2, End: 3}, Reason: timeline.ReasonFiller},
	}

	got := MergeTangents(spans, tangents, 10)
	require.Len(t, got, 3)
	assert.Equal(t, timeline.TimeRange{Start: 1, End: 2}, got[0].Range)
	assert.Equal(t, timeline.ReasonSilence, got[1].Reason)
	assert.Equal(t, timeline.TimeRange{Start: 8, End: 10}, got[2].Range)
	assert.Equal(t, timeline.ReasonTangent, got[2].Reason)
}
