// Package classify labels transcript regions as removal candidates. It never
// decides what gets cut; overlapping spans are resolved by the planner.
package classify

import (
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

const (
	scoreFiller     = 0.9
	scoreRepetition = 0.85
	scoreSilence    = 0.95
)

// DefaultFillers is the built-in disfluency lexicon. Multi-word entries match
// consecutive tokens.
var DefaultFillers = []string{
	"um", "uh", "er", "ah", "like", "you know", "i mean", "basically",
	"actually", "literally", "so", "well", "right", "okay", "ok",
}

type Options struct {
	Fillers           []string
	MaxFillerDuration float64
	MinSilenceGap     float64
	// MaxRepetitionRun bounds the length (in words) of a repeated phrase.
	MaxRepetitionRun int
	// FuzzyDistance > 0 lets tokens of 4+ runes match within that edit distance.
	FuzzyDistance int
}

func DefaultOptions() Options {
	return Options{
		Fillers:           DefaultFillers,
		MaxFillerDuration: 1.0,
		MinSilenceGap:     timeline.DefaultMinSilenceGap,
		MaxRepetitionRun:  8,
	}
}

type Classifier struct {
	opts    Options
	fillers [][]string
}

func New(opts Options) *Classifier {
	if opts.MaxFillerDuration <= 0 {
		opts.MaxFillerDuration = 1.0
	}
	if opts.MinSilenceGap <= 0 {
		opts.MinSilenceGap = timeline.DefaultMinSilenceGap
	}
	if opts.MaxRepetitionRun <= 0 {
		opts.MaxRepetitionRun = 8
	}

	phrases := lo.Uniq(lo.FilterMap(opts.Fillers, func(f string, _ int) (string, bool) {
		toks := tokenize(f)
		return strings.Join(toks, " "), len(toks) > 0
	}))
	fillers := lo.Map(phrases, func(p string, _ int) []string { return strings.Fields(p) })
	// Longest phrases first so "you know" wins over a lone "you".
	sort.SliceStable(fillers, func(i, j int) bool { return len(fillers[i]) > len(fillers[j]) })

	return &Classifier{opts: opts, fillers: fillers}
}

// Classify returns filler, repetition and silence spans sorted by start.
func (c *Classifier) Classify(tr types.Transcript, media types.MediaInfo) []timeline.Span {
	duration := media.Duration
	if duration <= 0 {
		duration = tr.Duration
	}
	tokens := lo.Map(tr.Words, func(w types.Word, _ int) string { return normalizeToken(w.Text) })

	var spans []timeline.Span
	spans = append(spans, c.fillerSpans(tr.Words, tokens)...)
	spans = append(spans, c.repetitionSpans(tr.Words, tokens)...)
	spans = append(spans, c.silenceSpans(tr.Words, duration)...)

	if duration > 0 {
		spans = lo.FilterMap(spans, func(s timeline.Span, _ int) (timeline.Span, bool) {
			rng, ok := s.Range.Clamp(duration)
			s.Range = rng
			return s, ok
		})
	}
	SortSpans(spans)
	return spans
}

func (c *Classifier) fillerSpans(words []types.Word, tokens []string) []timeline.Span {
	var out []timeline.Span
	var run []int

	flush := func() {
		if len(run) == 0 {
			return
		}
		out = append(out, wordSpan(words, run, timeline.ReasonFiller, scoreFiller))
		run = nil
	}

	for i := 0; i < len(words); {
		n := c.matchFiller(words, tokens, i)
		if n == 0 {
			flush()
			i++
			continue
		}
		for k := i; k < i+n; k++ {
			run = append(run, k)
		}
		i += n
	}
	flush()
	return out
}

// matchFiller returns how many words starting at i form a filler phrase.
func (c *Classifier) matchFiller(words []types.Word, tokens []string, i int) int {
	for _, phrase := range c.fillers {
		if i+len(phrase) > len(tokens) {
			continue
		}
		ok := true
		for k, tok := range phrase {
			w := words[i+k]
			if tokens[i+k] != tok || w.Duration() >= c.opts.MaxFillerDuration {
				ok = false
				break
			}
		}
		if ok {
			return len(phrase)
		}
	}
	return 0
}

// repetitionSpans marks a run of words that repeats the run right before it.
// The longest matching run wins; the earlier occurrence is kept.
func (c *Classifier) repetitionSpans(words []types.Word, tokens []string) []timeline.Span {
	var out []timeline.Span
	for i := 1; i < len(tokens); {
		best := 0
		maxRun := min(c.opts.MaxRepetitionRun, i, len(tokens)-i)
		for l := maxRun; l >= 1; l-- {
			if c.runsEqual(tokens[i-l:i], tokens[i:i+l]) {
				best = l
				break
			}
		}
		if best == 0 {
			i++
			continue
		}
		idx := make([]int, 0, best)
		for k := i; k < i+best; k++ {
			idx = append(idx, k)
		}
		out = append(out, wordSpan(words, idx, timeline.ReasonRepetition, scoreRepetition))
		i += best
	}
	return out
}

func (c *Classifier) runsEqual(a, b []string) bool {
	for k := range a {
		if !c.tokensEqual(a[k], b[k]) {
			return false
		}
	}
	return true
}

func (c *Classifier) tokensEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if c.opts.FuzzyDistance <= 0 {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 4 || len(rb) < 4 {
		return false
	}
	return levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions) <= c.opts.FuzzyDistance
}

// silenceSpans covers pauses longer than MinSilenceGap, leaving half the gap
// threshold of padding next to speech on each side.
func (c *Classifier) silenceSpans(words []types.Word, duration float64) []timeline.Span {
	gap := c.opts.MinSilenceGap
	pad := gap / 2

	if len(words) == 0 {
		if duration > 0 {
			return []timeline.Span{{Range: timeline.TimeRange{Start: 0, End: duration}, Reason: timeline.ReasonSilence, Score: scoreSilence}}
		}
		return nil
	}

	var out []timeline.Span
	add := func(start, end float64) {
		rng := timeline.TimeRange{Start: math.Max(0, start), End: end}
		if rng.Valid() {
			out = append(out, timeline.Span{Range: rng, Reason: timeline.ReasonSilence, Score: scoreSilence})
		}
	}

	if words[0].Start > gap {
		add(0, words[0].Start-pad)
	}
	// Track the furthest word end so overlapping word timestamps never open a
	// silence inside speech.
	speechEnd := words[0].End
	for _, w := range words[1:] {
		if w.Start-speechEnd > gap {
			add(speechEnd+pad, w.Start-pad)
		}
		speechEnd = math.Max(speechEnd, w.End)
	}
	if duration > 0 && duration-speechEnd > gap {
		add(speechEnd+pad, duration)
	}
	return out
}

func wordSpan(words []types.Word, idx []int, reason timeline.Reason, base float64) timeline.Span {
	first, last := words[idx[0]], words[idx[len(idx)-1]]
	conf := lo.SumBy(idx, func(i int) float64 { return confidence(words[i]) }) / float64(len(idx))
	return timeline.Span{
		Range:       timeline.TimeRange{Start: first.Start, End: math.Max(last.End, first.End)},
		Reason:      reason,
		SourceWords: idx,
		Score:       base * conf,
	}
}

func confidence(w types.Word) float64 {
	if w.Confidence <= 0 || w.Confidence > 1 {
		return 1
	}
	return w.Confidence
}

// SortSpans orders spans by start, then end, then reason.
func SortSpans(spans []timeline.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Range.Start != b.Range.Start {
			return a.Range.Start < b.Range.Start
		}
		if a.Range.End != b.Range.End {
			return a.Range.End < b.Range.End
		}
		return a.Reason < b.Reason
	})
}

func tokenize(s string) []string {
	return lo.FilterMap(strings.Fields(s), func(f string, _ int) (string, bool) {
		t := normalizeToken(f)
		return t, t != ""
	})
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return strings.ContainsRune(`"'`+"`"+`[](){}.,!?;:-…`, r)
	})
}
