package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forPelevin/autocut/internal/pipeline"
)

func (a *app) editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <input>",
		Short: "Transcribe, plan and render in one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEdit(cmd, args[0])
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default <run dir>/edited<ext>)")
	addPlanFlags(cmd)
	addRenderFlags(cmd)
	return cmd
}

func (a *app) runEdit(cmd *cobra.Command, input string) error {
	settings, err := a.settings(cmd)
	if err != nil {
		return err
	}
	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	cfg := a.pipelineConfig(absIn, settings)
	cfg.Output, _ = cmd.Flags().GetString("output")
	cfg.Force, _ = cmd.Flags().GetBool("force")
	cfg.TangentsFile, _ = cmd.Flags().GetString("tangents-file")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store := a.history(settings)
	if store != nil {
		defer store.Close()
	}
	cfg.History = store

	ctx, cancel := runContext()
	defer cancel()

	res, err := pipeline.Run(ctx, cfg)
	out := cmd.OutOrStdout()
	if res.RunDir != "" {
		fmt.Fprintf(out, "run dir: %s\n", res.RunDir)
	}
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	m := res.Manifest
	fmt.Fprintf(out, "%s: %s (%.1fs -> %.1fs, %d segments, %d re-encoded)\n",
		res.Status, res.Output, m.Original, m.Edited, m.Segments, m.Reencoded)
	return nil
}
