// Package usecase runs the editing stages over the ports: probe, transcribe,
// plan (classify, tangents, plan, fit) and render.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/domain/classify"
	"github.com/forPelevin/autocut/internal/domain/fitter"
	"github.com/forPelevin/autocut/internal/domain/planner"
	"github.com/forPelevin/autocut/internal/domain/render"
	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/ports"
	"github.com/forPelevin/autocut/internal/types"
)

// TranscriptCacheFile is the transcript cached per run directory.
const TranscriptCacheFile = "transcript.json"

type Deps struct {
	Video ports.VideoTool
	ASR   ports.ASR
	// Tangents is optional.
	Tangents ports.TangentDetector
	Log      *zap.Logger
	// RetryBackOff builds the transcription retry schedule. Defaults to
	// exponential backoff starting at one second.
	RetryBackOff func() backoff.BackOff
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.RetryBackOff == nil {
		d.RetryBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		}
	}
	return Usecase{d: d}
}

func (u Usecase) Probe(ctx context.Context, input string) (types.MediaInfo, error) {
	start := time.Now()
	info, err := u.d.Video.Probe(ctx, input)
	if err != nil {
		return types.MediaInfo{}, apperr.Wrap(apperr.KindProbe, "probe "+filepath.Base(input), err)
	}
	if info.Duration <= 0 {
		return types.MediaInfo{}, apperr.New(apperr.KindProbe, "media has no duration")
	}
	u.d.Log.Info("probed",
		zap.String("stage", "probe"),
		zap.String("input", input),
		zap.Float64("media_sec", info.Duration),
		zap.Bool("video", info.HasVideo()),
		zap.Int("keyframes", len(info.Keyframes)),
		zap.Duration("duration", time.Since(start)),
	)
	return info, nil
}

type TranscribeInput struct {
	Input    string
	CacheDir string
	// Force ignores a cached transcript.
	Force      bool
	MaxRetries int
}

// Transcribe extracts the audio track and transcribes it, retrying
// retryable backend failures. A transcript cached in CacheDir is reused
// unless Force is set.
func (u Usecase) Transcribe(ctx context.Context, in TranscribeInput) (types.Transcript, error) {
	start := time.Now()
	cachePath := filepath.Join(in.CacheDir, TranscriptCacheFile)
	if !in.Force {
		if tr, err := ReadTranscript(cachePath); err == nil {
			u.d.Log.Info("transcript cache hit", zap.String("stage", "transcribe"), zap.String("path", cachePath), zap.Int("words", len(tr.Words)))
			return tr, nil
		}
	}

	if err := os.MkdirAll(in.CacheDir, 0o755); err != nil {
		return types.Transcript{}, apperr.Wrap(apperr.KindTranscription, "create cache dir", err)
	}
	audio := filepath.Join(in.CacheDir, "audio"+u.d.ASR.AudioExt())
	if err := u.d.Video.ExtractAudio(ctx, in.Input, audio); err != nil {
		return types.Transcript{}, apperr.Wrap(apperr.KindTranscription, "extract audio", err)
	}

	var tr types.Transcript
	attempt := 0
	op := func() error {
		attempt++
		t, err := u.d.ASR.Transcribe(ctx, audio, in.CacheDir)
		if err != nil {
			if ctx.Err() != nil || !apperr.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		tr = t
		return nil
	}
	retries := in.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(u.d.RetryBackOff(), uint64(retries)), ctx)
	notify := func(err error, wait time.Duration) {
		u.d.Log.Warn("transcription failed, retrying",
			zap.String("stage", "transcribe"),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if apperr.KindOf(err) == apperr.KindTranscription {
			return types.Transcript{}, err
		}
		return types.Transcript{}, apperr.Wrap(apperr.KindTranscription, "transcribe", err)
	}

	if err := WriteTranscript(cachePath, tr); err != nil {
		u.d.Log.Warn("transcript cache write failed", zap.String("path", cachePath), zap.Error(err))
	}
	u.d.Log.Info("transcribed",
		zap.String("stage", "transcribe"),
		zap.Int("words", len(tr.Words)),
		zap.Int("attempts", attempt),
		zap.Duration("duration", time.Since(start)),
	)
	return tr, nil
}

type PlanInput struct {
	Transcript types.Transcript
	Media      types.MediaInfo
	Policy     timeline.Policy
	Classifier classify.Options
	// Spans, when non-nil, replaces classification.
	Spans []timeline.Span
	// Tangents are merged in addition to any detector output.
	Tangents []timeline.Span
}

type PlanResult struct {
	Spans    []timeline.Span
	Plan     timeline.EditPlan
	Warnings []string
}

// Plan classifies the transcript, merges detected tangents, plans the cut
// and fits it to the policy target. An unreachable target is a warning.
func (u Usecase) Plan(ctx context.Context, in PlanInput) (PlanResult, error) {
	start := time.Now()
	var res PlanResult

	if in.Spans != nil {
		res.Spans = append([]timeline.Span(nil), in.Spans...)
		classify.SortSpans(res.Spans)
	} else {
		opts := in.Classifier
		opts.MinSilenceGap = in.Policy.MinSilenceGap
		res.Spans = classify.New(opts).Classify(in.Transcript, in.Media)
	}
	if len(in.Tangents) > 0 {
		res.Spans = classify.MergeTangents(res.Spans, in.Tangents, in.Media.Duration)
	}

	if u.d.Tangents != nil && (in.Policy.RemoveTangents || in.Policy.TargetDuration != nil) {
		tangents, err := u.d.Tangents.DetectTangents(ctx, in.Transcript)
		switch {
		case err != nil && ctx.Err() != nil:
			return res, ctx.Err()
		case err != nil:
			u.d.Log.Warn("tangent detection failed", zap.String("stage", "plan"), zap.Error(err))
			res.Warnings = append(res.Warnings, "tangent detection failed: "+err.Error())
		default:
			res.Spans = classify.MergeTangents(res.Spans, tangents, in.Media.Duration)
		}
	}

	plan, err := planner.Plan(in.Transcript, res.Spans, in.Policy, in.Media.Duration)
	if err != nil {
		return res, err
	}

	if in.Policy.TargetDuration != nil {
		fitted, err := fitter.New(res.Spans, in.Policy).Fit(plan, *in.Policy.TargetDuration)
		var fitErr *apperr.LengthFitError
		switch {
		case errors.As(err, &fitErr):
			u.d.Log.Warn("target length unreachable",
				zap.String("stage", "plan"),
				zap.Float64("target_sec", fitErr.Target),
				zap.Float64("achieved_sec", fitErr.Achieved),
			)
			res.Warnings = append(res.Warnings, fitErr.Error())
		case err != nil:
			return res, apperr.Wrap(apperr.KindPlanning, "fit target length", err)
		}
		plan = fitted
	}
	res.Plan = plan

	u.d.Log.Info("planned",
		zap.String("stage", "plan"),
		zap.Int("spans", len(res.Spans)),
		zap.Int("segments", len(plan.KeepSegments)),
		zap.Float64("original_sec", plan.OriginalDuration),
		zap.Float64("edited_sec", plan.EditedDuration),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

type RenderInput struct {
	Input   string
	Output  string
	Plan    timeline.EditPlan
	Media   types.MediaInfo
	Words   []types.Word
	Options render.Options
	// Burn draws the caption cues into the picture. ASSPath receives the
	// styled subtitle file used for it.
	Burn     bool
	ASSPath  string
	ASSStyle subtitles.ASSStyle
}

type RenderResult struct {
	Instruction render.Instruction
	Warnings    []string
}

func (u Usecase) Render(ctx context.Context, in RenderInput) (RenderResult, error) {
	start := time.Now()
	opts := in.Options
	burn := in.Burn
	var res RenderResult
	if burn && !in.Media.HasVideo() {
		res.Warnings = append(res.Warnings, "captions not burned: input has no video stream")
		burn = false
	}
	if burn {
		opts.Captions = true
	}

	instr, err := render.Translate(in.Plan, in.Media, in.Words, opts)
	if err != nil {
		return res, apperr.Wrap(apperr.KindRender, "translate plan", err)
	}
	res.Instruction = instr
	if burn && len(instr.Cues) == 0 {
		burn = false
	}

	if err := os.MkdirAll(filepath.Dir(in.Output), 0o755); err != nil {
		return res, apperr.Wrap(apperr.KindRender, "create output dir", err)
	}

	if !burn {
		if err := render.Execute(ctx, u.d.Video, instr, in.Input, in.Output); err != nil {
			return res, err
		}
	} else {
		if err := u.renderBurned(ctx, in, instr); err != nil {
			return res, err
		}
	}

	u.d.Log.Info("rendered",
		zap.String("stage", "render"),
		zap.String("output", in.Output),
		zap.Int("segments", len(instr.Ranges)),
		zap.Int("reencoded", instr.Count(render.ModeReencode)),
		zap.Int("cues", len(instr.Cues)),
		zap.Bool("burned", burn),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (u Usecase) renderBurned(ctx context.Context, in RenderInput, instr render.Instruction) error {
	if in.ASSPath == "" {
		return apperr.New(apperr.KindRender, "burn requested without a subtitle path")
	}
	ext := filepath.Ext(in.Output)
	cut := filepath.Join(filepath.Dir(in.Output), "."+filepath.Base(in.Output)+".cut"+ext)
	defer os.Remove(cut)

	if err := render.Execute(ctx, u.d.Video, instr, in.Input, cut); err != nil {
		return err
	}
	if err := WriteAtomic(in.ASSPath, func(f *os.File) error {
		return subtitles.WriteASS(f, instr.Cues, in.ASSStyle)
	}); err != nil {
		return apperr.Wrap(apperr.KindRender, "write captions", err)
	}
	if err := u.d.Video.BurnCaptions(ctx, cut, in.ASSPath, in.Output); err != nil {
		return apperr.Wrap(apperr.KindRender, "burn captions", err)
	}
	return nil
}

// Artifacts receives each stage result as soon as it exists, so a failure
// later in the run still leaves the earlier artifacts behind.
type Artifacts interface {
	Probe(info types.MediaInfo) error
	Transcript(tr types.Transcript) error
	Plan(res PlanResult) error
}

type EditInput struct {
	Input      string
	Output     string
	CacheDir   string
	Force      bool
	MaxRetries int
	Policy     timeline.Policy
	Classifier classify.Options
	Render     render.Options
	Burn       bool
	ASSPath    string
	// ASSStyle is sized to the probed frame when nil.
	ASSStyle func(types.MediaInfo) subtitles.ASSStyle
}

type EditResult struct {
	Media       types.MediaInfo
	Transcript  types.Transcript
	Plan        PlanResult
	Instruction render.Instruction
	Warnings    []string
}

// Edit runs every stage in order. The returned error carries the failing
// stage as its apperr kind.
func (u Usecase) Edit(ctx context.Context, in EditInput, sink Artifacts) (EditResult, error) {
	var res EditResult

	media, err := u.Probe(ctx, in.Input)
	if err != nil {
		return res, err
	}
	res.Media = media
	if err := sink.Probe(media); err != nil {
		return res, fmt.Errorf("write probe artifact: %w", err)
	}

	tr, err := u.Transcribe(ctx, TranscribeInput{Input: in.Input, CacheDir: in.CacheDir, Force: in.Force, MaxRetries: in.MaxRetries})
	if err != nil {
		return res, err
	}
	res.Transcript = tr
	if err := sink.Transcript(tr); err != nil {
		return res, fmt.Errorf("write transcript artifacts: %w", err)
	}

	planned, err := u.Plan(ctx, PlanInput{Transcript: tr, Media: media, Policy: in.Policy, Classifier: in.Classifier})
	if err != nil {
		return res, err
	}
	res.Plan = planned
	res.Warnings = append(res.Warnings, planned.Warnings...)
	if err := sink.Plan(planned); err != nil {
		return res, fmt.Errorf("write plan artifacts: %w", err)
	}

	style := subtitles.DefaultASSStyle()
	if in.ASSStyle != nil {
		style = in.ASSStyle(media)
	} else if media.Video != nil {
		style.Width, style.Height = media.Video.Width, media.Video.Height
	}
	rendered, err := u.Render(ctx, RenderInput{
		Input:    in.Input,
		Output:   in.Output,
		Plan:     planned.Plan,
		Media:    media,
		Words:    tr.Words,
		Options:  in.Render,
		Burn:     in.Burn,
		ASSPath:  in.ASSPath,
		ASSStyle: style,
	})
	res.Instruction = rendered.Instruction
	res.Warnings = append(res.Warnings, rendered.Warnings...)
	return res, err
}

func ReadTranscript(path string) (types.Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Transcript{}, err
	}
	var tr types.Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return types.Transcript{}, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	return tr, nil
}

func WriteTranscript(path string, tr types.Transcript) error {
	return WriteAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(tr)
	})
}

// WriteAtomic writes path through a temp file in the same directory and
// renames it into place.
func WriteAtomic(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.partial")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
