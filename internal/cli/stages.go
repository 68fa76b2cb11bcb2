package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/autocut/internal/config"
	"github.com/forPelevin/autocut/internal/domain/render"
	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/pipeline"
	"github.com/forPelevin/autocut/internal/storage"
	"github.com/forPelevin/autocut/internal/types"
	"github.com/forPelevin/autocut/internal/usecase"
)

// stage bundles what every single-stage command needs.
type stage struct {
	settings config.Config
	cfg      pipeline.Config
	uc       usecase.Usecase
	warnings []string
}

func (a *app) stage(cmd *cobra.Command, input string) (*stage, error) {
	settings, err := a.settings(cmd)
	if err != nil {
		return nil, err
	}
	absIn, err := filepath.Abs(input)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absIn); err != nil {
		return nil, fmt.Errorf("config: stat input: %w", err)
	}
	cfg := a.pipelineConfig(absIn, settings)
	if f := cmd.Flags().Lookup("tangents-file"); f != nil {
		cfg.TangentsFile = f.Value.String()
	}
	if f := cmd.Flags().Lookup("force"); f != nil {
		cfg.Force, _ = cmd.Flags().GetBool("force")
	}
	deps, warnings, err := pipeline.Wire(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &stage{settings: settings, cfg: cfg, uc: usecase.New(deps), warnings: warnings}, nil
}

func (a *app) probeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <input>",
		Short: "Print media facts (duration, streams, keyframes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.stage(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := runContext()
			defer cancel()
			info, err := st.uc.Probe(ctx, st.cfg.Input)
			if err != nil {
				return err
			}
			return writeJSONOut(cmd, info)
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write JSON here instead of stdout")
	return cmd
}

func (a *app) transcribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <input>",
		Short: "Transcribe speech into word timings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.stage(cmd, args[0])
			if err != nil {
				return err
			}
			if err := st.cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, cancel := runContext()
			defer cancel()
			tr, err := st.uc.Transcribe(ctx, usecase.TranscribeInput{
				Input:      st.cfg.Input,
				CacheDir:   pipeline.CacheDirFor(st.settings.CacheDir, st.cfg.Input),
				Force:      st.cfg.Force,
				MaxRetries: st.settings.Transcribe.MaxRetries,
			})
			if err != nil {
				return err
			}
			if srt, _ := cmd.Flags().GetBool("srt"); srt {
				return writeOut(cmd, func(f *os.File) error {
					return subtitles.WriteTranscriptSRT(f, tr.Words, st.settings.CueOptions())
				})
			}
			return writeJSONOut(cmd, tr)
		},
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "Write the transcript here instead of stdout")
	f.Bool("srt", false, "Write SRT instead of JSON")
	f.Bool("force", false, "Ignore the cached transcript")
	f.String("backend", "", "Transcription backend: whispercpp or openai")
	f.String("language", "", "Spoken language code, e.g. en")
	return cmd
}

func (a *app) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <input>",
		Short: "Decide what to cut and write an edit plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			st, err := a.stage(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := runContext()
			defer cancel()

			media, err := st.uc.Probe(ctx, st.cfg.Input)
			if err != nil {
				return err
			}
			tr, err := a.loadTranscript(ctx, cmd, st)
			if err != nil {
				return err
			}
			policy, err := st.settings.ToPolicy()
			if err != nil {
				return err
			}
			res, err := st.uc.Plan(ctx, usecase.PlanInput{
				Transcript: tr,
				Media:      media,
				Policy:     policy,
				Classifier: st.settings.ClassifierOptions(),
			})
			warnings := append(st.warnings, res.Warnings...)
			job := &storage.Job{
				Command:     "plan",
				Input:       st.cfg.Input,
				Status:      jobStatus(err, warnings),
				Preset:      st.settings.Preset,
				OriginalSec: res.Plan.OriginalDuration,
				EditedSec:   res.Plan.EditedDuration,
				Segments:    len(res.Plan.KeepSegments),
				Warnings:    len(warnings),
			}
			if err != nil {
				job.Error = err.Error()
			}
			a.record(st.settings, job, started)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("output")
			if spansPath, _ := cmd.Flags().GetString("spans"); spansPath != "" {
				b, err := timeline.MarshalSpans(res.Spans)
				if err != nil {
					return err
				}
				if err := usecase.WriteAtomic(spansPath, func(f *os.File) error {
					_, err := f.Write(b)
					return err
				}); err != nil {
					return err
				}
			}
			if err := pipeline.SavePlan(out, res.Plan); err != nil {
				return err
			}
			printWarnings(cmd, warnings)
			fmt.Fprintf(cmd.OutOrStdout(), "plan: %s (%.1fs -> %.1fs, %d segments)\n",
				out, res.Plan.OriginalDuration, res.Plan.EditedDuration, len(res.Plan.KeepSegments))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringP("output", "o", "plan.json", "Plan file to write")
	f.String("transcript", "", "Transcript JSON (default: transcribe or use the cache)")
	f.String("spans", "", "Also write the removal spans here")
	addPlanFlags(cmd)
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <input>",
		Short: "Cut the input according to a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			st, err := a.stage(cmd, args[0])
			if err != nil {
				return err
			}
			planPath, _ := cmd.Flags().GetString("plan")
			output, _ := cmd.Flags().GetString("output")
			if planPath == "" || output == "" {
				return fmt.Errorf("config: --plan and --output are required")
			}
			if _, err := os.Stat(output); err == nil && !st.cfg.Force {
				return fmt.Errorf("output %s exists (use --force to overwrite)", output)
			}
			plan, err := pipeline.LoadPlan(planPath)
			if err != nil {
				return err
			}

			ctx, cancel := runContext()
			defer cancel()
			media, err := st.uc.Probe(ctx, st.cfg.Input)
			if err != nil {
				return err
			}
			var words []types.Word
			if st.settings.Captions.Mode != config.CaptionsOff {
				tr, err := a.loadTranscript(ctx, cmd, st)
				if err != nil {
					return err
				}
				words = tr.Words
			}

			assPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".ass"
			width, height := 0, 0
			if media.Video != nil {
				width, height = media.Video.Width, media.Video.Height
			}
			res, err := st.uc.Render(ctx, usecase.RenderInput{
				Input:    st.cfg.Input,
				Output:   output,
				Plan:     plan,
				Media:    media,
				Words:    words,
				Options:  st.settings.RenderOptions(),
				Burn:     st.settings.Captions.Mode == config.CaptionsBurn,
				ASSPath:  assPath,
				ASSStyle: st.settings.ASSStyle(width, height),
			})
			if err == nil && st.settings.Captions.Mode == config.CaptionsSRT && len(res.Instruction.Cues) > 0 {
				srtPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".srt"
				err = usecase.WriteAtomic(srtPath, func(f *os.File) error {
					return subtitles.WriteSRT(f, res.Instruction.Cues)
				})
			}
			warnings := append(st.warnings, res.Warnings...)
			job := &storage.Job{
				Command:     "render",
				Input:       st.cfg.Input,
				Output:      output,
				Status:      jobStatus(err, warnings),
				Preset:      st.settings.Preset,
				OriginalSec: plan.OriginalDuration,
				EditedSec:   plan.EditedDuration,
				Segments:    len(res.Instruction.Ranges),
				Reencoded:   res.Instruction.Count(render.ModeReencode),
				Warnings:    len(warnings),
			}
			if err != nil {
				job.Output = ""
				job.Error = err.Error()
			}
			a.record(st.settings, job, started)
			if err != nil {
				return err
			}
			printWarnings(cmd, warnings)
			fmt.Fprintf(cmd.OutOrStdout(), "rendered: %s (%d segments, %d re-encoded)\n",
				output, len(res.Instruction.Ranges), res.Instruction.Count(render.ModeReencode))
			return nil
		},
	}
	f := cmd.Flags()
	f.String("plan", "", "Plan file written by `autocut plan`")
	f.StringP("output", "o", "", "Output file")
	f.String("transcript", "", "Transcript JSON for captions (default: the cache)")
	addRenderFlags(cmd)
	return cmd
}

// loadTranscript reads --transcript, or transcribes with the per-input
// cache.
func (a *app) loadTranscript(ctx context.Context, cmd *cobra.Command, st *stage) (types.Transcript, error) {
	if p, _ := cmd.Flags().GetString("transcript"); p != "" {
		return usecase.ReadTranscript(p)
	}
	if err := st.cfg.Validate(); err != nil {
		return types.Transcript{}, fmt.Errorf("config: %w", err)
	}
	return st.uc.Transcribe(ctx, usecase.TranscribeInput{
		Input:      st.cfg.Input,
		CacheDir:   pipeline.CacheDirFor(st.settings.CacheDir, st.cfg.Input),
		Force:      st.cfg.Force,
		MaxRetries: st.settings.Transcribe.MaxRetries,
	})
}

func (a *app) record(settings config.Config, job *storage.Job, started time.Time) {
	store := a.history(settings)
	if store == nil {
		return
	}
	defer store.Close()
	job.ElapsedMS = time.Since(started).Milliseconds()
	ctx, cancel := runContext()
	defer cancel()
	pipeline.Record(ctx, store, a.log, job)
}

func jobStatus(err error, warnings []string) string {
	switch {
	case err != nil:
		return pipeline.StatusFailed
	case len(warnings) > 0:
		return pipeline.StatusWithWarnings
	default:
		return pipeline.StatusSuccess
	}
}

func printWarnings(cmd *cobra.Command, warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}
}

// writeOut writes to --output atomically, or to stdout.
func writeOut(cmd *cobra.Command, write func(f *os.File) error) error {
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		return write(os.Stdout)
	}
	return usecase.WriteAtomic(out, write)
}

func writeJSONOut(cmd *cobra.Command, v any) error {
	out, _ := cmd.Flags().GetString("output")
	if out != "" {
		return pipeline.WriteJSON(out, v)
	}
	return encodeJSON(cmd.OutOrStdout(), v)
}
