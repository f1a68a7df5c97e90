package kb

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/localkb/knowledgebase/internal/watcher"
)

// Watch runs the filesystem watcher over the documents folder, triggering
// a folder-scoped reindex for each debounced batch of events. Reindex runs
// are serialized through the receive loop, so a burst of filesystem events
// collapses into one run per affected top-level folder. Watch blocks until
// ctx is cancelled; watch-loop errors are logged and never crash the loop.
func (s *Service) Watch(ctx context.Context, bus *Bus) error {
	opts := watcher.DefaultOptions()
	if s.cfg.Watch.Debounce != "" {
		if d, err := time.ParseDuration(s.cfg.Watch.Debounce); err == nil && d > 0 {
			opts.DebounceWindow = d
		}
	}

	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return err
	}
	defer w.Stop()

	startErr := make(chan error, 1)
	go func() {
		startErr <- w.Start(ctx, s.root)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-startErr:
			if err != nil && err != context.Canceled {
				return err
			}
			return nil
		case werr, ok := <-w.Errors():
			if ok && werr != nil {
				s.logger.Warn("watcher error", slog.String("error", werr.Error()))
			}
		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, folder := range affectedFolders(events) {
				if _, rerr := s.Reindex(ctx, folder, bus); rerr != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					s.logger.Warn("watch-triggered reindex failed",
						slog.String("folder", folder), slog.String("error", rerr.Error()))
				}
			}
		}
	}
}

// affectedFolders maps an event batch to the distinct top-level folders to
// reindex. An event directly under the root yields "" (a full reindex),
// which then subsumes every other folder in the batch.
func affectedFolders(events []watcher.FileEvent) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range events {
		folder := topSegment(e.Path)
		if folder == "" {
			return []string{""}
		}
		if !seen[folder] {
			seen[folder] = true
			out = append(out, folder)
		}
	}
	return out
}

func topSegment(relPath string) string {
	clean := strings.Trim(path.Clean(strings.ReplaceAll(relPath, "\\", "/")), "/")
	if clean == "" || clean == "." {
		return ""
	}
	if idx := strings.Index(clean, "/"); idx >= 0 {
		return clean[:idx]
	}
	return ""
}
