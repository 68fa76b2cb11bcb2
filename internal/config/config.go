// Package config resolves run settings. Precedence, lowest first: built-in
// defaults, the selected preset, the TOML file, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/forPelevin/autocut/internal/domain/classify"
	"github.com/forPelevin/autocut/internal/domain/render"
	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
)

const DefaultPreset = "podcast"

// Caption modes.
const (
	CaptionsOff  = "off"
	CaptionsSRT  = "srt"
	CaptionsBurn = "burn"
)

// Transcription backends.
const (
	BackendWhisperCpp = "whispercpp"
	BackendOpenAI     = "openai"
)

type Config struct {
	Preset     string     `toml:"preset"`
	OutDir     string     `toml:"out_dir"`
	CacheDir   string     `toml:"cache_dir"`
	HistoryDB  string     `toml:"history_db"`
	Policy     Policy     `toml:"policy"`
	Classifier Classifier `toml:"classifier"`
	Captions   Captions   `toml:"captions"`
	Render     Render     `toml:"render"`
	Transcribe Transcribe `toml:"transcribe"`
	Tangents   Tangents   `toml:"tangents"`
	Server     Server     `toml:"server"`
}

type Policy struct {
	RemoveFillers     bool    `toml:"remove_fillers"`
	RemoveRepetitions bool    `toml:"remove_repetitions"`
	RemoveSilence     bool    `toml:"remove_silence"`
	RemoveTangents    bool    `toml:"remove_tangents"`
	MinSilenceGap     float64 `toml:"min_silence_gap"`
	MinSegmentLength  float64 `toml:"min_segment_length"`
	// TargetLength accepts "6m", "90s", "1h2m" or plain seconds.
	TargetLength string `toml:"target_length"`
}

type Classifier struct {
	Fillers           []string `toml:"fillers"`
	MaxFillerDuration float64  `toml:"max_filler_duration"`
	MaxRepetitionRun  int      `toml:"max_repetition_run"`
	FuzzyDistance     int      `toml:"fuzzy_distance"`
}

type Captions struct {
	Mode           string  `toml:"mode"`
	MaxLines       int     `toml:"max_lines"`
	MaxLineChars   int     `toml:"max_line_chars"`
	MaxCueDuration float64 `toml:"max_cue_duration"`
	MaxWordGap     float64 `toml:"max_word_gap"`
	FontName       string  `toml:"font_name"`
	FontSize       int     `toml:"font_size"`
}

type Render struct {
	FFmpegPath    string  `toml:"ffmpeg_path"`
	FFprobePath   string  `toml:"ffprobe_path"`
	SnapTolerance float64 `toml:"snap_tolerance"`
	ForceReencode bool    `toml:"force_reencode"`
	Workers       int     `toml:"workers"`
	Preset        string  `toml:"x264_preset"`
	CRF           int     `toml:"crf"`
}

type Transcribe struct {
	Backend       string `toml:"backend"`
	Language      string `toml:"language"`
	WhisperBin    string `toml:"whisper_bin"`
	WhisperModel  string `toml:"whisper_model"`
	OpenAIModel   string `toml:"openai_model"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	MaxRetries    int    `toml:"max_retries"`
}

type Tangents struct {
	Model        string   `toml:"model"`
	BaseURL      string   `toml:"base_url"`
	AllowedHosts []string `toml:"allowed_hosts"`
}

type Server struct {
	Addr string `toml:"addr"`
}

func Default() Config {
	cls := classify.DefaultOptions()
	cues := subtitles.DefaultOptions()
	style := subtitles.DefaultASSStyle()
	return Config{
		Preset:    DefaultPreset,
		OutDir:    "out",
		CacheDir:  ".cache",
		HistoryDB: filepath.Join(".cache", "history.db"),
		Policy: Policy{
			RemoveFillers:     true,
			RemoveRepetitions: true,
			RemoveSilence:     true,
			MinSilenceGap:     timeline.DefaultMinSilenceGap,
			MinSegmentLength:  timeline.DefaultMinSegmentLength,
		},
		Classifier: Classifier{
			Fillers:           append([]string(nil), cls.Fillers...),
			MaxFillerDuration: cls.MaxFillerDuration,
			MaxRepetitionRun:  cls.MaxRepetitionRun,
		},
		Captions: Captions{
			Mode:           CaptionsSRT,
			MaxLines:       cues.MaxLines,
			MaxLineChars:   cues.MaxLineChars,
			MaxCueDuration: cues.MaxCueDuration,
			MaxWordGap:     cues.MaxWordGap,
			FontName:       style.FontName,
			FontSize:       style.FontSize,
		},
		Render: Render{
			FFmpegPath:    "ffmpeg",
			FFprobePath:   "ffprobe",
			SnapTolerance: render.DefaultSnapTolerance,
			Preset:        "veryfast",
			CRF:           20,
		},
		Transcribe: Transcribe{
			Backend:      BackendWhisperCpp,
			WhisperBin:   ".cache/bin/whisper.cpp",
			WhisperModel: ".cache/models/ggml-base.bin",
			OpenAIModel:  "whisper-1",
			MaxRetries:   3,
		},
		Tangents: Tangents{
			Model: "z-ai/glm-4.5-air:free",
		},
		Server: Server{Addr: "127.0.0.1:8787"},
	}
}

// presets toggle reasons and the silence threshold only.
var presets = map[string]Policy{
	"podcast": {RemoveFillers: true, RemoveRepetitions: true, RemoveSilence: true, MinSilenceGap: 1.5},
	"meeting": {RemoveFillers: true, RemoveSilence: true, MinSilenceGap: 2.0},
	"course":  {RemoveFillers: true, RemoveRepetitions: true, RemoveSilence: true, RemoveTangents: true, MinSilenceGap: 1.0},
	"clean":   {RemoveFillers: true, RemoveRepetitions: true, RemoveSilence: true, RemoveTangents: true, MinSilenceGap: 0.8},
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset overwrites the reason toggles and silence gap with the named
// preset. Other policy fields are untouched.
func (c *Config) ApplyPreset(name string) error {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("unknown preset %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	c.Preset = name
	c.Policy.RemoveFillers = p.RemoveFillers
	c.Policy.RemoveRepetitions = p.RemoveRepetitions
	c.Policy.RemoveSilence = p.RemoveSilence
	c.Policy.RemoveTangents = p.RemoveTangents
	c.Policy.MinSilenceGap = p.MinSilenceGap
	return nil
}

// Load builds the config for preset (DefaultPreset when empty) and overlays
// the TOML file at path. A missing file is not an error when path is empty.
// A preset named inside the file applies before the file's own keys.
func Load(path, preset string) (Config, error) {
	cfg := Default()

	if path != "" {
		var probe struct {
			Preset string `toml:"preset"`
		}
		if _, err := toml.DecodeFile(path, &probe); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		if preset == "" {
			preset = probe.Preset
		}
	}
	if preset == "" {
		preset = DefaultPreset
	}
	if err := cfg.ApplyPreset(preset); err != nil {
		return Config{}, err
	}

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
		cfg.Preset = preset
	}
	return cfg, cfg.Validate()
}

// Save writes c as TOML, creating parent directories.
func Save(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c Config) Validate() error {
	if _, err := c.ToPolicy(); err != nil {
		return err
	}
	switch c.Captions.Mode {
	case CaptionsOff, CaptionsSRT, CaptionsBurn:
	default:
		return fmt.Errorf("unknown captions mode %q (want off, srt or burn)", c.Captions.Mode)
	}
	switch c.Transcribe.Backend {
	case BackendWhisperCpp, BackendOpenAI:
	default:
		return fmt.Errorf("unknown transcribe backend %q", c.Transcribe.Backend)
	}
	if c.Render.SnapTolerance < 0 {
		return errors.New("snap tolerance must be >= 0")
	}
	if c.Transcribe.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// ToPolicy converts the policy section, parsing the target length.
func (c Config) ToPolicy() (timeline.Policy, error) {
	p := timeline.Policy{
		RemoveFillers:     c.Policy.RemoveFillers,
		RemoveRepetitions: c.Policy.RemoveRepetitions,
		RemoveSilence:     c.Policy.RemoveSilence,
		RemoveTangents:    c.Policy.RemoveTangents,
		MinSilenceGap:     c.Policy.MinSilenceGap,
		MinSegmentLength:  c.Policy.MinSegmentLength,
	}
	if strings.TrimSpace(c.Policy.TargetLength) != "" {
		sec, err := ParseTargetLength(c.Policy.TargetLength)
		if err != nil {
			return timeline.Policy{}, err
		}
		p = p.WithTarget(sec)
	}
	if err := p.Validate(); err != nil {
		return timeline.Policy{}, fmt.Errorf("policy: %w", err)
	}
	return p, nil
}

func (c Config) ClassifierOptions() classify.Options {
	return classify.Options{
		Fillers:           c.Classifier.Fillers,
		MaxFillerDuration: c.Classifier.MaxFillerDuration,
		MinSilenceGap:     c.Policy.MinSilenceGap,
		MaxRepetitionRun:  c.Classifier.MaxRepetitionRun,
		FuzzyDistance:     c.Classifier.FuzzyDistance,
	}
}

func (c Config) CueOptions() subtitles.Options {
	return subtitles.Options{
		MaxLines:       c.Captions.MaxLines,
		MaxLineChars:   c.Captions.MaxLineChars,
		MaxCueDuration: c.Captions.MaxCueDuration,
		MaxWordGap:     c.Captions.MaxWordGap,
	}
}

func (c Config) RenderOptions() render.Options {
	return render.Options{
		SnapTolerance: c.Render.SnapTolerance,
		ForceReencode: c.Render.ForceReencode,
		Captions:      c.Captions.Mode != CaptionsOff,
		Cues:          c.CueOptions(),
	}
}

// ASSStyle sizes burned captions for a frame of width x height.
func (c Config) ASSStyle(width, height int) subtitles.ASSStyle {
	s := subtitles.DefaultASSStyle()
	if width > 0 && height > 0 {
		s.Width, s.Height = width, height
		// FontSize is given for a 1080p frame.
		s.FontSize = c.Captions.FontSize * height / 1080
	}
	if c.Captions.FontName != "" {
		s.FontName = c.Captions.FontName
	}
	if s.FontSize <= 0 {
		s.FontSize = c.Captions.FontSize
	}
	return s
}

// ParseTargetLength accepts Go durations ("6m", "90s", "1h2m", "1m30s") or a
// bare number of seconds, and returns seconds.
func ParseTargetLength(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("target length is empty")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v <= 0 {
			return 0, fmt.Errorf("target length %q must be > 0", s)
		}
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid target length %q: want e.g. 6m, 90s, 1h2m or seconds", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("target length %q must be > 0", s)
	}
	return d.Seconds(), nil
}
