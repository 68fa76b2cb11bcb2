// Package render turns an EditPlan into encoder instructions: which source
// ranges to cut, whether each can be stream-copied, and the caption cues for
// the output timeline.
package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/domain/remap"
	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

type BoundaryMode string

const (
	ModeCopy     BoundaryMode = "copy"
	ModeReencode BoundaryMode = "reencode"
)

const DefaultSnapTolerance = 0.040

const eps = 1e-9

// Range is one keep-segment to cut from the source.
type Range struct {
	Source timeline.TimeRange `json:"source"`
	Mode   BoundaryMode       `json:"mode"`
}

type Instruction struct {
	Ranges []Range         `json:"ranges"`
	Cues   []subtitles.Cue `json:"cues,omitempty"`
}

func (in Instruction) Count(mode BoundaryMode) int {
	return lo.CountBy(in.Ranges, func(r Range) bool { return r.Mode == mode })
}

func (in Instruction) Duration() float64 {
	return lo.SumBy(in.Ranges, func(r Range) float64 { return r.Source.Duration() })
}

type Options struct {
	// SnapTolerance is how far (seconds) a cut may sit from a keyframe and
	// still be stream-copied. Starts must sit at or after their keyframe.
	SnapTolerance float64
	ForceReencode bool
	Captions      bool
	Cues          subtitles.Options
}

func DefaultOptions() Options {
	return Options{SnapTolerance: DefaultSnapTolerance, Captions: true, Cues: subtitles.DefaultOptions()}
}

// copyableCodecs can be stream-copied and re-encoded to a matching stream,
// so copy and re-encode segments concatenate cleanly.
var copyableCodecs = map[string]struct{}{
	"h264": {},
	"hevc": {},
}

// Translate decides the boundary mode of every keep-segment and builds the
// caption cues. It never re-derives keep decisions from spans.
func Translate(plan timeline.EditPlan, media types.MediaInfo, words []types.Word, opts Options) (Instruction, error) {
	if err := plan.Validate(); err != nil {
		return Instruction{}, apperr.Wrap(apperr.KindRender, "invalid plan", err)
	}
	tol := opts.SnapTolerance
	if tol <= 0 {
		tol = DefaultSnapTolerance
	}
	if media.Duration > 0 && plan.OriginalDuration > media.Duration+tol {
		return Instruction{}, apperr.New(apperr.KindRender, fmt.Sprintf(
			"plan covers %.3fs but the input is %.3fs long; was it made for another file?",
			plan.OriginalDuration, media.Duration))
	}

	total := plan.OriginalDuration
	if media.Duration > 0 {
		total = media.Duration
	}
	keyframes := append([]float64(nil), media.Keyframes...)
	sort.Float64s(keyframes)

	copyOK := !opts.ForceReencode
	if media.HasVideo() {
		_, known := copyableCodecs[strings.ToLower(media.Video.Codec)]
		copyOK = copyOK && known && len(keyframes) > 0
	}

	atFileEdge := func(t float64) bool {
		return !media.HasVideo() || t <= tol || math.Abs(total-t) <= tol
	}
	// A stream-copied start seeks back to the keyframe at or before it and
	// keeps everything from there, so only keyframes in [t-tol, t] qualify.
	startAligned := func(t float64) bool {
		return atFileEdge(t) || keyframeAtOrBefore(keyframes, t, tol)
	}
	endAligned := func(t float64) bool {
		return atFileEdge(t) || nearKeyframe(keyframes, t, tol)
	}

	out := Instruction{Ranges: make([]Range, 0, len(plan.KeepSegments))}
	for _, k := range plan.KeepSegments {
		mode := ModeReencode
		if copyOK && startAligned(k.Start) && endAligned(k.End) {
			mode = ModeCopy
		}
		out.Ranges = append(out.Ranges, Range{Source: k, Mode: mode})
	}

	if opts.Captions && len(words) > 0 {
		out.Cues = subtitles.BuildCues(words, remap.New(plan), opts.Cues)
	}
	return out, nil
}

func keyframeAtOrBefore(sorted []float64, t, tol float64) bool {
	i := sort.SearchFloat64s(sorted, t+eps)
	return i > 0 && t-sorted[i-1] <= tol
}

func nearKeyframe(sorted []float64, t, tol float64) bool {
	i := sort.SearchFloat64s(sorted, t)
	if i < len(sorted) && sorted[i]-t <= tol {
		return true
	}
	return i > 0 && t-sorted[i-1] <= tol
}

// Encoder is the backend that materializes an Instruction.
type Encoder interface {
	CutAndConcat(ctx context.Context, in string, ranges []Range, out string) error
}

// Execute hands the ranges to enc. Failures come back as render errors; a
// failure the backend already pinned to a range keeps that range.
func Execute(ctx context.Context, enc Encoder, instr Instruction, in, out string) error {
	if len(instr.Ranges) == 0 {
		return apperr.New(apperr.KindRender, "no ranges to render")
	}
	err := enc.CutAndConcat(ctx, in, instr.Ranges, out)
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindRender {
		return err
	}
	return apperr.Wrap(apperr.KindRender, "encode "+out, err)
}
