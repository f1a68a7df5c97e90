// Package cmd provides the CLI commands for the kb knowledge base.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/config"
	"github.com/localkb/knowledgebase/internal/errors"
	"github.com/localkb/knowledgebase/internal/logging"
	"github.com/localkb/knowledgebase/pkg/version"
)

// Exit codes: 0 success, 1 user error (validation, not-found, ambiguous),
// 2 operational error (io, cache, embedding, internal).
const (
	exitOK          = 0
	exitUserError   = 1
	exitOperational = 2
)

var (
	jsonOutput     bool
	folderOverride string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kb CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Local-first markdown knowledge base with hybrid search",
		Long: `kb manages a folder tree of markdown documents and answers queries
with hybrid BM25 + semantic search, entirely locally.

The markdown tree is the source of truth; the sidecar cache and all
embeddings are derived and rebuildable with 'kb reindex'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("kb version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON output")
	cmd.PersistentFlags().StringVar(&folderOverride, "documents", "", "Documents folder (overrides config)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logCfg := logging.DefaultConfig()
		if debugMode {
			logCfg = logging.DebugConfig()
		} else if cfg, _, err := loadConfig(); err == nil {
			logCfg.Level = cfg.Server.LogLevel
		}
		logCfg.WriteToStderr = false
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			slog.SetDefault(logger)
			loggingCleanup = cleanup
		}
		return nil
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(
		newInitCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newReindexCmd(),
		newListCmd(),
		newSearchCmd(),
		newReadCmd(),
		newCreateCmd(),
		newTagCmd(),
		newFolderCmd(),
		newTrashCmd(),
		newWatchCmd(),
	)

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeFor(err)
	}
	return exitOK
}

// exitCodeFor maps the core's error categories to exit codes without
// string matching.
func exitCodeFor(err error) int {
	switch errors.GetCategory(err) {
	case errors.CategoryValidation, errors.CategoryConfig:
		return exitUserError
	default:
		return exitOperational
	}
}

// loadConfig loads the layered configuration and resolves the documents
// folder, honoring the --documents override.
func loadConfig() (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, "", err
	}
	root := cfg.Documents.Folder
	if folderOverride != "" {
		root = folderOverride
	}
	return cfg, root, nil
}
