package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/config"
	"github.com/forPelevin/autocut/internal/domain/render"
	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/ports"
	"github.com/forPelevin/autocut/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/autocut/internal/ports/adapters/openai"
	"github.com/forPelevin/autocut/internal/ports/adapters/openrouter"
	"github.com/forPelevin/autocut/internal/ports/adapters/tangentfile"
	"github.com/forPelevin/autocut/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/autocut/internal/storage"
	"github.com/forPelevin/autocut/internal/types"
	"github.com/forPelevin/autocut/internal/usecase"
)

// Run outcomes.
const (
	StatusSuccess      = "success"
	StatusWithWarnings = "success_with_warnings"
	StatusFailed       = "failed"
)

type Config struct {
	Input string
	// Output defaults to edited<ext> inside the run directory.
	Output   string
	Settings config.Config
	// Force re-transcribes and overwrites an existing output.
	Force bool
	// TangentsFile supplies tangent spans instead of the LLM detector.
	TangentsFile string

	OpenAIAPIKey     string
	OpenRouterAPIKey string

	Log     *zap.Logger
	History *storage.Store
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.Input); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	switch c.Settings.Transcribe.Backend {
	case config.BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai backend (set it in .env)")
		}
	case config.BackendWhisperCpp:
		if c.Settings.Transcribe.WhisperModel == "" {
			return errors.New("whisper model path is required")
		}
	}
	if c.useLLMTangents() {
		if _, err := openrouter.ValidateBaseURL(c.Settings.Tangents.BaseURL, c.Settings.Tangents.AllowedHosts); err != nil {
			return err
		}
	}
	if c.TangentsFile != "" {
		if _, err := os.Stat(c.TangentsFile); err != nil {
			return fmt.Errorf("stat tangents file: %w", err)
		}
	}
	return nil
}

func (c Config) wantTangents() bool {
	return c.Settings.Policy.RemoveTangents || strings.TrimSpace(c.Settings.Policy.TargetLength) != ""
}

func (c Config) useLLMTangents() bool {
	return c.TangentsFile == "" && c.wantTangents() && c.OpenRouterAPIKey != ""
}

func (c Config) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// Wire builds the adapters for c. The warnings describe requested features
// that have no backing service.
func Wire(c Config) (usecase.Deps, []string, error) {
	s := c.Settings
	log := c.logger()
	var warnings []string

	video := ffmpeg.New(ffmpeg.Options{
		FFmpegPath:  s.Render.FFmpegPath,
		FFprobePath: s.Render.FFprobePath,
		Workers:     s.Render.Workers,
		Preset:      s.Render.Preset,
		CRF:         s.Render.CRF,
		Logger:      log,
	})

	var asr ports.ASR
	switch s.Transcribe.Backend {
	case config.BackendOpenAI:
		asr = openai.New(c.OpenAIAPIKey, s.Transcribe.OpenAIBaseURL, s.Transcribe.OpenAIModel, s.Transcribe.Language)
	default:
		asr = whispercpp.New(s.Transcribe.WhisperBin, s.Transcribe.WhisperModel)
	}

	var tangents ports.TangentDetector
	switch {
	case c.TangentsFile != "":
		tangents = tangentfile.New(c.TangentsFile)
	case c.useLLMTangents():
		baseURL, err := openrouter.ValidateBaseURL(s.Tangents.BaseURL, s.Tangents.AllowedHosts)
		if err != nil {
			return usecase.Deps{}, nil, err
		}
		tangents = openrouter.New(c.OpenRouterAPIKey, s.Tangents.Model, baseURL)
	case s.Policy.RemoveTangents:
		warnings = append(warnings, "tangent removal requested but no detector configured (set OPENROUTER_API_KEY or --tangents-file)")
	}

	return usecase.Deps{Video: video, ASR: asr, Tangents: tangents, Log: log}, warnings, nil
}

type Result struct {
	RunDir   string
	Output   string
	Status   string
	Warnings []string
	Manifest types.Manifest
}

// Run executes the full edit and leaves every artifact in a fresh run
// directory. The manifest is written even when a stage fails.
func Run(ctx context.Context, cfg Config) (Result, error) {
	started := time.Now()
	log := cfg.logger()
	s := cfg.Settings

	deps, warnings, err := Wire(cfg)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	uc := usecase.New(deps)

	runDir := buildRunOutDir(s.OutDir, cfg.Input, started.UTC())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Result{Status: StatusFailed}, err
	}
	output := cfg.Output
	if output == "" {
		output = filepath.Join(runDir, "edited"+filepath.Ext(cfg.Input))
	}
	if _, err := os.Stat(output); err == nil && !cfg.Force {
		return Result{Status: StatusFailed}, fmt.Errorf("output %s exists (use --force to overwrite)", output)
	}
	cacheDir := CacheDirFor(s.CacheDir, cfg.Input)
	log.Info("run started", zap.String("input", cfg.Input), zap.String("run_dir", runDir), zap.String("cache", cacheDir))

	policy, err := s.ToPolicy()
	if err != nil {
		return Result{Status: StatusFailed}, err
	}

	arts := newRunArtifacts(runDir, s.CueOptions())
	assPath := filepath.Join(runDir, "captions.ass")
	edit, runErr := uc.Edit(ctx, usecase.EditInput{
		Input:      cfg.Input,
		Output:     output,
		CacheDir:   cacheDir,
		Force:      cfg.Force,
		MaxRetries: s.Transcribe.MaxRetries,
		Policy:     policy,
		Classifier: s.ClassifierOptions(),
		Render:     s.RenderOptions(),
		Burn:       s.Captions.Mode == config.CaptionsBurn,
		ASSPath:    assPath,
		ASSStyle: func(m types.MediaInfo) subtitles.ASSStyle {
			if m.Video == nil {
				return s.ASSStyle(0, 0)
			}
			return s.ASSStyle(m.Video.Width, m.Video.Height)
		},
	}, arts)
	warnings = append(warnings, edit.Warnings...)

	if runErr == nil && s.Captions.Mode != config.CaptionsOff && len(edit.Instruction.Cues) > 0 {
		if err := arts.captions(edit.Instruction.Cues); err != nil {
			runErr = apperr.Wrap(apperr.KindRender, "write captions", err)
		}
	}
	if _, err := os.Stat(assPath); err == nil {
		arts.files["captions_ass"] = "captions.ass"
	}

	m := types.Manifest{
		Input:     cfg.Input,
		Output:    output,
		Warnings:  warnings,
		Original:  edit.Plan.Plan.OriginalDuration,
		Edited:    edit.Plan.Plan.EditedDuration,
		Removed:   removedByReason(edit.Plan.Plan),
		Segments:  len(edit.Instruction.Ranges),
		Reencoded: edit.Instruction.Count(render.ModeReencode),
		Artifacts: arts.files,
	}
	switch {
	case runErr != nil:
		m.Status = StatusFailed
		m.Error = runErr.Error()
		m.Output = ""
	case len(warnings) > 0:
		m.Status = StatusWithWarnings
	default:
		m.Status = StatusSuccess
	}
	m.Artifacts["manifest"] = "manifest.json"
	if err := WriteJSON(filepath.Join(runDir, "manifest.json"), m); err != nil && runErr == nil {
		runErr = fmt.Errorf("write manifest: %w", err)
		m.Status = StatusFailed
	}

	Record(ctx, cfg.History, log, &storage.Job{
		Command:     "edit",
		Input:       cfg.Input,
		Output:      m.Output,
		RunDir:      runDir,
		Status:      m.Status,
		Error:       m.Error,
		Preset:      s.Preset,
		OriginalSec: m.Original,
		EditedSec:   m.Edited,
		Segments:    m.Segments,
		Reencoded:   m.Reencoded,
		Warnings:    len(warnings),
		ElapsedMS:   time.Since(started).Milliseconds(),
	})

	res := Result{RunDir: runDir, Output: m.Output, Status: m.Status, Warnings: warnings, Manifest: m}
	if runErr != nil {
		log.Error("run failed", zap.String("stage", apperr.KindOf(runErr).String()), zap.Error(runErr))
		return res, runErr
	}
	log.Info("run finished",
		zap.String("status", m.Status),
		zap.String("output", output),
		zap.Float64("original_sec", m.Original),
		zap.Float64("edited_sec", m.Edited),
		zap.Duration("duration", time.Since(started)),
	)
	return res, nil
}

// Record stores j in the history database. Failures are logged only.
func Record(ctx context.Context, store *storage.Store, log *zap.Logger, j *storage.Job) {
	if store == nil {
		return
	}
	if err := store.SaveJob(ctx, j); err != nil {
		log.Warn("history write failed", zap.String("command", j.Command), zap.Error(err))
	}
}

func removedByReason(p timeline.EditPlan) map[string]float64 {
	if len(p.RemovalSummary) == 0 {
		return nil
	}
	out := make(map[string]float64, len(p.RemovalSummary))
	for r, sec := range p.RemovalSummary {
		out[string(r)] = sec
	}
	return out
}

// CacheDirFor is the per-input cache directory (extracted audio, cached
// transcript). It survives across runs of the same input.
func CacheDirFor(base, input string) string {
	if base == "" {
		base = ".cache"
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		abs = input
	}
	return filepath.Join(base, "runs", hash(abs))
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	if outRoot == "" {
		outRoot = "out"
	}
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.ASR = (*openai.Adapter)(nil)
var _ ports.TangentDetector = (*openrouter.Adapter)(nil)
var _ ports.TangentDetector = (*tangentfile.Detector)(nil)
