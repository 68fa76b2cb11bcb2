package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forPelevin/autocut/internal/config"
	"github.com/forPelevin/autocut/internal/logging"
	"github.com/forPelevin/autocut/internal/pipeline"
	"github.com/forPelevin/autocut/internal/storage"
)

// runTimeout bounds one invocation; long recordings re-encode slowly.
const runTimeout = 3 * time.Hour

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root, a := newRoot()
	err := root.Execute()
	if a.closeLog != nil {
		a.closeLog()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	verbose    bool
	logFile    string
	historyDB  string
	noHistory  bool

	log      *zap.Logger
	closeLog func()
}

func newRoot() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "autocut",
		Short:         "Cut fillers, repetitions, silences and tangents out of a recording",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, closeFn, err := logging.New(logging.Options{Verbose: a.verbose, FilePath: a.logFile, Console: cmd.ErrOrStderr()})
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			a.log, a.closeLog = log, closeFn
			return nil
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")
	pf.StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file")
	pf.StringVar(&a.historyDB, "history-db", "", "Run history database (default from config)")
	pf.BoolVar(&a.noHistory, "no-history", false, "Do not record this run")

	root.AddCommand(
		a.probeCmd(),
		a.transcribeCmd(),
		a.planCmd(),
		a.renderCmd(),
		a.editCmd(),
		a.serveCmd(),
		a.historyCmd(),
		a.configCmd(),
	)
	return root, a
}

// settings loads the config file for the command's --preset and applies
// environment and flag overrides.
func (a *app) settings(cmd *cobra.Command) (config.Config, error) {
	preset := ""
	if f := cmd.Flags().Lookup("preset"); f != nil && f.Changed {
		preset = f.Value.String()
	}
	cfg, err := config.Load(a.configPath, preset)
	if err != nil {
		return config.Config{}, err
	}
	applyEnv(&cfg)
	if err := applyFlags(cmd, &cfg); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) {
	setFromEnv(&cfg.Transcribe.WhisperBin, "WHISPER_BIN")
	setFromEnv(&cfg.Transcribe.WhisperModel, "WHISPER_MODEL")
	setFromEnv(&cfg.Tangents.Model, "OPENROUTER_MODEL")
	setFromEnv(&cfg.Tangents.BaseURL, "OPENROUTER_BASE_URL")
	if v := os.Getenv("OPENROUTER_ALLOWED_HOSTS"); v != "" {
		cfg.Tangents.AllowedHosts = strings.Split(v, ",")
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// pipelineConfig is the shared service wiring for commands that touch
// media.
func (a *app) pipelineConfig(input string, settings config.Config) pipeline.Config {
	return pipeline.Config{
		Input:            input,
		Settings:         settings,
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		Log:              a.log,
	}
}

// history opens the run database. A failure only disables recording.
func (a *app) history(settings config.Config) *storage.Store {
	if a.noHistory {
		return nil
	}
	path := a.historyDB
	if path == "" {
		path = settings.HistoryDB
	}
	if path == "" {
		return nil
	}
	store, err := storage.Open(path)
	if err != nil {
		a.log.Warn("history disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	return store
}

func runContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
