package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forPelevin/autocut/internal/config"
)

func addPlanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("preset", "p", "", "Edit preset: "+strings.Join(config.PresetNames(), ", ")+" (default "+config.DefaultPreset+")")
	f.Bool("no-fillers", false, "Keep filler words")
	f.Bool("no-repetitions", false, "Keep repetitions")
	f.Bool("no-silence", false, "Keep silences")
	f.Bool("tangents", false, "Remove tangents (needs OPENROUTER_API_KEY or --tangents-file)")
	f.String("tangents-file", "", "JSON file of tangent ranges")
	f.String("target-length", "", "Target duration, e.g. 6m, 90s, 1h2m")
	f.Float64("min-silence", 0, "Minimum pause (seconds) treated as silence")
	f.String("backend", "", "Transcription backend: whispercpp or openai")
	f.String("language", "", "Spoken language code, e.g. en")
	f.Bool("force", false, "Re-transcribe and overwrite existing output")
}

func addRenderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("captions", "", "Captions: off, srt or burn (default from config)")
	f.Bool("reencode", false, "Re-encode every segment instead of stream-copying")
	if cmd.Flags().Lookup("force") == nil {
		f.Bool("force", false, "Overwrite existing output")
	}
}

// applyFlags overlays the flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	changed := func(name string) bool {
		fl := f.Lookup(name)
		return fl != nil && fl.Changed
	}
	boolFlag := func(name string) bool {
		v, _ := f.GetBool(name)
		return v
	}

	if changed("no-fillers") && boolFlag("no-fillers") {
		cfg.Policy.RemoveFillers = false
	}
	if changed("no-repetitions") && boolFlag("no-repetitions") {
		cfg.Policy.RemoveRepetitions = false
	}
	if changed("no-silence") && boolFlag("no-silence") {
		cfg.Policy.RemoveSilence = false
	}
	if changed("tangents") {
		cfg.Policy.RemoveTangents = boolFlag("tangents")
	}
	if changed("tangents-file") {
		cfg.Policy.RemoveTangents = true
	}
	if changed("target-length") {
		v, _ := f.GetString("target-length")
		if _, err := config.ParseTargetLength(v); err != nil {
			return err
		}
		cfg.Policy.TargetLength = v
	}
	if changed("min-silence") {
		v, _ := f.GetFloat64("min-silence")
		cfg.Policy.MinSilenceGap = v
	}
	if changed("backend") {
		cfg.Transcribe.Backend, _ = f.GetString("backend")
	}
	if changed("language") {
		cfg.Transcribe.Language, _ = f.GetString("language")
	}
	if changed("captions") {
		v, _ := f.GetString("captions")
		switch v {
		case config.CaptionsOff, config.CaptionsSRT, config.CaptionsBurn:
			cfg.Captions.Mode = v
		default:
			return fmt.Errorf("--captions must be off, srt or burn, got %q", v)
		}
	}
	if changed("reencode") {
		cfg.Render.ForceReencode = boolFlag("reencode")
	}
	if changed("addr") {
		cfg.Server.Addr, _ = f.GetString("addr")
	}
	return nil
}
