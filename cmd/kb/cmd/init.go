package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/configs"
	"github.com/localkb/knowledgebase/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the documents folder and default configuration",
		Long: `Creates the documents folder, writes the user configuration file from
its template if missing, and initializes the sidecar cache on first
reindex. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := loadConfig()
			if err != nil {
				return err
			}

			if err := os.MkdirAll(root, 0o755); err != nil {
				return fmt.Errorf("failed to create documents folder %s: %w", root, err)
			}

			userPath := config.GetUserConfigPath()
			wroteConfig := false
			if force || !config.UserConfigExists() {
				if err := os.MkdirAll(filepath.Dir(userPath), 0o755); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
				if err := os.WriteFile(userPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
					return fmt.Errorf("failed to write config template: %w", err)
				}
				wroteConfig = true
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"documents_folder": root,
					"config_path":      userPath,
					"config_written":   wroteConfig,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Documents folder: %s\n", root)
			if wroteConfig {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote config template: %s\n", userPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already present: %s\n", userPath)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'kb reindex' after adding documents.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing user config with the template")
	return cmd
}
