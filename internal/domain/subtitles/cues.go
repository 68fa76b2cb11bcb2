// Package subtitles groups transcript words into caption cues on the edited
// timeline and writes them as SRT or ASS.
package subtitles

import (
	"strings"

	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

// Mapper places original-timeline ranges on the output timeline.
type Mapper interface {
	RemapRange(r timeline.TimeRange) (timeline.TimeRange, bool)
	SameSegment(a, b float64) bool
}

type Options struct {
	MaxLines       int     `json:"max_lines"`
	MaxLineChars   int     `json:"max_line_chars"`
	MaxCueDuration float64 `json:"max_cue_duration"`
	// MaxWordGap starts a new cue after a pause this long.
	MaxWordGap float64 `json:"max_word_gap"`
}

func DefaultOptions() Options {
	return Options{MaxLines: 2, MaxLineChars: 42, MaxCueDuration: 7, MaxWordGap: 1.0}
}

// Cue is one caption event. Start and End are on the output timeline.
type Cue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`

	Lines [][]CueWord `json:"-"`
}

type CueWord struct {
	Start float64
	End   float64
	Text  string
}

// minWordDuration stretches zero-length ASR words so they still map.
const minWordDuration = 0.01

// BuildCues remaps every word through m and packs the survivors into cues.
// Words whose start was cut are dropped; a word running into a cut is
// truncated at the cut. A cue never spans a cut. A nil m keeps the original
// timeline.
func BuildCues(words []types.Word, m Mapper, opts Options) []Cue {
	if m == nil {
		m = identity{}
	}
	opts = withDefaults(opts)

	var (
		out      []Cue
		cur      *Cue
		curLen   int
		prevOrig float64
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Index = len(out) + 1
		cur.Text = joinLines(cur.Lines)
		out = append(out, *cur)
		cur = nil
	}

	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		end := w.End
		if end <= w.Start {
			end = w.Start + minWordDuration
		}
		rng, ok := m.RemapRange(timeline.TimeRange{Start: w.Start, End: end})
		if !ok {
			continue
		}
		cw := CueWord{Start: rng.Start, End: rng.End, Text: text}
		wl := len([]rune(text))

		if cur != nil {
			lastLine := cur.Lines[len(cur.Lines)-1]
			split := rng.Start-cur.End > opts.MaxWordGap ||
				!m.SameSegment(prevOrig, w.Start) ||
				rng.End-cur.Start > opts.MaxCueDuration
			switch {
			case split:
				flush()
			case curLen+1+wl <= opts.MaxLineChars:
				cur.Lines[len(cur.Lines)-1] = append(lastLine, cw)
				curLen += 1 + wl
				cur.End = rng.End
				prevOrig = w.Start
				continue
			case len(cur.Lines) < opts.MaxLines:
				cur.Lines = append(cur.Lines, []CueWord{cw})
				curLen = wl
				cur.End = rng.End
				prevOrig = w.Start
				continue
			default:
				flush()
			}
		}

		cur = &Cue{Start: rng.Start, End: rng.End, Lines: [][]CueWord{{cw}}}
		curLen = wl
		prevOrig = w.Start
	}
	flush()

	for i := 0; i+1 < len(out); i++ {
		if out[i].End > out[i+1].Start {
			out[i].End = out[i+1].Start
		}
	}
	return out
}

func joinLines(lines [][]CueWord) string {
	parts := make([]string, 0, len(lines))
	for _, ln := range lines {
		words := make([]string, 0, len(ln))
		for _, w := range ln {
			words = append(words, w.Text)
		}
		parts = append(parts, strings.Join(words, " "))
	}
	return strings.Join(parts, "\n")
}

func withDefaults(o Options) Options {
	d := DefaultOptions()
	if o.MaxLines <= 0 {
		o.MaxLines = d.MaxLines
	}
	if o.MaxLineChars <= 0 {
		o.MaxLineChars = d.MaxLineChars
	}
	if o.MaxCueDuration <= 0 {
		o.MaxCueDuration = d.MaxCueDuration
	}
	if o.MaxWordGap <= 0 {
		o.MaxWordGap = d.MaxWordGap
	}
	return o
}

type identity struct{}

func (identity) RemapRange(r timeline.TimeRange) (timeline.TimeRange, bool) { return r, r.Valid() }

func (identity) SameSegment(float64, float64) bool { return true }
