// Package cmd provides the CLI commands for aki.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/config"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/logging"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/profiling"
	"github.com/evanwmart/augmented-knowledge-interfaces/pkg/version"
)

// Persistent flags shared by every subcommand.
var (
	docsFlag     string
	indexDirFlag string
	debugMode    bool

	profileCPU   string
	profileMem   string
	profileTrace string
)

var (
	profiler       = profiling.NewProfiler()
	cpuCleanup     func()
	traceCleanup   func()
	loggingCleanup func()
)

// NewRootCmd creates the root command for the aki CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aki",
		Short: "Hybrid retrieval over local documentation",
		Long: `aki indexes a directory of documentation (markdown, HTML, text)
and answers queries with hybrid retrieval: BM25 keyword matching fused
with semantic embedding similarity.

Run 'aki index' in your docs directory, then 'aki search <query>'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("aki version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&docsFlag, "docs", "", "Documentation corpus root (default: current directory)")
	cmd.PersistentFlags().StringVar(&indexDirFlag, "index-dir", "", "Index directory (default: <docs>/.aki)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to "+logging.DefaultLogDir())

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// startProfilingAndLogging starts debug logging and any requested
// profiles before a command runs.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Short()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging flushes profiles and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig resolves the effective configuration for a command run:
// layered config for the docs directory, then the persistent flag
// overrides.
func loadConfig() (*config.Config, error) {
	docs := docsFlag
	if docs == "" {
		docs = os.Getenv("AKI_DOCS_DIR")
	}
	if docs == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		docs = cwd
	}
	abs, err := filepath.Abs(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve docs directory %q: %w", docs, err)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	cfg.Paths.DocsDir = abs
	if indexDirFlag != "" {
		cfg.Paths.IndexDir = indexDirFlag
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
