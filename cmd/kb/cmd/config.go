package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/localkb/knowledgebase/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration values",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigBackupsCmd(), newConfigRestoreCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print a configuration value, or the whole configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), cfg)
				}
				data, merr := yaml.Marshal(cfg)
				if merr != nil {
					return merr
				}
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			}

			value, err := configValue(cfg, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"key": args[0], "value": value})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in the user config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			path := config.GetUserConfigPath()
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}

			// Back up the existing config before overwriting it, so a bad
			// set is recoverable via `kb config restore`.
			backupPath, err := config.BackupUserConfig()
			if err != nil {
				return fmt.Errorf("failed to back up config before write: %w", err)
			}

			if err := cfg.WriteYAML(path); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"key": args[0], "value": args[1], "backup_path": backupPath,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List user config backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), backups)
			}
			if len(backups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
				return nil
			}
			for _, b := range backups {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup-path]",
		Short: "Restore the user config from a backup (newest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var backupPath string
			if len(args) == 1 {
				backupPath = args[0]
			} else {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					return fmt.Errorf("no config backups to restore")
				}
				backupPath = backups[0]
			}

			if err := config.RestoreUserConfig(backupPath); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"restored_from": backupPath})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored config from %s\n", backupPath)
			return nil
		},
	}
}

// configValue resolves a dotted key against the known settable fields.
func configValue(cfg *config.Config, key string) (interface{}, error) {
	switch strings.ToLower(key) {
	case "documents.folder":
		return cfg.Documents.Folder, nil
	case "documents.cache_path":
		return cfg.Documents.CachePath, nil
	case "search.bm25_weight":
		return cfg.Search.BM25Weight, nil
	case "search.semantic_weight":
		return cfg.Search.SemanticWeight, nil
	case "search.bm25_backend":
		return cfg.Search.BM25Backend, nil
	case "search.ann_threshold":
		return cfg.Search.ANNThreshold, nil
	case "search.max_results":
		return cfg.Search.MaxResults, nil
	case "embeddings.model":
		return cfg.Embeddings.Model, nil
	case "embeddings.sync_batch_size":
		return cfg.Embeddings.SyncBatchSize, nil
	case "performance.index_workers":
		return cfg.Performance.IndexWorkers, nil
	case "performance.lru_size":
		return cfg.Performance.LRUSize, nil
	case "watch.debounce":
		return cfg.Watch.Debounce, nil
	case "server.log_level":
		return cfg.Server.LogLevel, nil
	default:
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "documents.folder":
		cfg.Documents.Folder = value
	case "documents.cache_path":
		cfg.Documents.CachePath = value
	case "search.bm25_weight":
		return setFloat(&cfg.Search.BM25Weight, value)
	case "search.semantic_weight":
		return setFloat(&cfg.Search.SemanticWeight, value)
	case "search.bm25_backend":
		cfg.Search.BM25Backend = value
	case "search.ann_threshold":
		return setInt(&cfg.Search.ANNThreshold, value)
	case "search.max_results":
		return setInt(&cfg.Search.MaxResults, value)
	case "embeddings.model":
		cfg.Embeddings.Model = value
	case "embeddings.sync_batch_size":
		return setInt(&cfg.Embeddings.SyncBatchSize, value)
	case "performance.index_workers":
		return setInt(&cfg.Performance.IndexWorkers, value)
	case "performance.lru_size":
		return setInt(&cfg.Performance.LRUSize, value)
	case "watch.debounce":
		cfg.Watch.Debounce = value
	case "server.log_level":
		cfg.Server.LogLevel = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("expected a number, got %q", value)
	}
	*dst = f
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("expected an integer, got %q", value)
	}
	*dst = n
	return nil
}
