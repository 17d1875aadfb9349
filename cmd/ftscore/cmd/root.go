// Package cmd provides the CLI commands for ftscore.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/logging"
	"github.com/Aman-CERP/ftscore/pkg/engine"
)

// engineVersion is surfaced by `ftscore --version`; bumped alongside
// on-disk format changes recorded in internal/store.EngineVersion.
const engineVersion = "0.1.0"

var (
	dataRoot   string
	configPath string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the ftscore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ftscore",
		Short:   "A local full-text and hybrid search engine core",
		Version: engineVersion,
		Long: `ftscore indexes and searches JSON documents with combined
keyword (a ranking-rule cascade: words, typo, proximity, attribute,
exactness) and vector search, modeled on the multi-index,
task-queue-driven architecture of production search engines.

Document writes, snapshots and dumps are enqueued as tasks and processed
asynchronously by the scheduler; use 'ftscore task' to follow progress.
Settings updates apply immediately and are logged as a task, and
'index create' / 'index delete' act immediately unless --async is given.`,
	}
	cmd.SetVersionTemplate("ftscore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "Root directory for index/task data (default: "+config.DefaultDataRoot()+")")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML engine config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the engine log file")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newDocumentsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newDumpCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg = logging.DebugConfig()
		logCfg.WriteToStderr = false
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is not critical for the CLI to function.
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadEngineConfig resolves the engine-level config from --config (or
// engine defaults), then applies the --data-root override.
func loadEngineConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dataRoot != "" {
		cfg.DataRoot = dataRoot
	}
	return cfg, nil
}

// openEngine opens an Engine rooted at the resolved data directory. Every
// subcommand opens its own Engine and closes it before returning, since
// this CLI is a one-shot client rather than a long-lived daemon.
func openEngine() (*engine.Engine, error) {
	cfg, err := loadEngineConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	return engine.Open(engine.Options{
		DataDir:         cfg.DataRoot,
		MaxMapSizeBytes: cfg.Indexes.MapSizeBytes,
		Logger:          slog.Default(),
	})
}
