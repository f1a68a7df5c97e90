package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/kb"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the documents folder and reindex on changes",
		Long: `Watches the documents folder for filesystem changes, excluding the
trash and the sidecar database, and triggers a folder-scoped reindex
after each debounced burst of events. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := kb.NewService(root, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var bus *kb.Bus
			if stdoutIsTTY() && !jsonOutput {
				bus = kb.NewBus(func(e kb.Event) {
					if c, ok := e.(kb.Phase2Complete); ok {
						fmt.Fprintf(cmd.OutOrStdout(), "reindexed: %d synced, %d failed\n", c.Synced, c.Failed)
					}
				}, 0)
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (ctrl-c to stop)\n", root)
			}

			err = svc.Watch(ctx, bus)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
