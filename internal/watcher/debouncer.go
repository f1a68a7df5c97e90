package watcher

import (
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events to prevent reindex thrashing.
// Events are grouped by their top-level folder (the knowledge base
// reindexes per folder, not per file) and events for the same path within
// a group are merged according to these rules:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
type Debouncer struct {
	window  time.Duration
	groups  map[string]map[string]*pendingEvent // top-level folder -> path -> event
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopCh  chan struct{}
	stopped bool
}

type pendingEvent struct {
	event    FileEvent
	firstOp  Operation
	lastSeen time.Time
}

// NewDebouncer creates a new debouncer with the given window duration.
// Events are coalesced within this window before being emitted.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		groups: make(map[string]map[string]*pendingEvent),
		output: make(chan []FileEvent, 10),
		stopCh: make(chan struct{}),
	}
}

// topLevelFolder returns the first path segment of a relative path, or ""
// for a file directly under the watched root.
func topLevelFolder(relPath string) string {
	clean := strings.Trim(path.Clean(strings.ReplaceAll(relPath, "\\", "/")), "/")
	if clean == "" || clean == "." {
		return ""
	}
	if idx := strings.Index(clean, "/"); idx >= 0 {
		return clean[:idx]
	}
	return ""
}

// Add adds an event to be debounced, grouped by top-level folder so a
// reindex fires once per changed folder rather than once per file.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	folder := topLevelFolder(event.Path)
	group, ok := d.groups[folder]
	if !ok {
		group = make(map[string]*pendingEvent)
		d.groups[folder] = group
	}

	now := time.Now()
	if existing, ok := group[event.Path]; ok {
		coalesced := d.coalesce(existing, event)
		if coalesced == nil {
			delete(group, event.Path)
			if len(group) == 0 {
				delete(d.groups, folder)
			}
		} else {
			existing.event = *coalesced
			existing.lastSeen = now
		}
	} else {
		group[event.Path] = &pendingEvent{
			event:    event,
			firstOp:  event.Operation,
			lastSeen: now,
		}
	}

	d.scheduleFlush()
}

// coalesce merges two events according to the coalescing rules.
// Returns nil if the events cancel each other out.
func (d *Debouncer) coalesce(existing *pendingEvent, new FileEvent) *FileEvent {
	switch existing.firstOp {
	case OpCreate:
		switch new.Operation {
		case OpModify:
			return &existing.event
		case OpDelete:
			return nil
		default:
			return &new
		}

	case OpModify:
		switch new.Operation {
		case OpModify:
			return &new
		case OpDelete:
			return &new
		default:
			return &new
		}

	case OpDelete:
		switch new.Operation {
		case OpCreate:
			result := new
			result.Operation = OpModify
			return &result
		default:
			return &new
		}

	default:
		return &new
	}
}

// scheduleFlush schedules a flush after the debounce window.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.flush()
	})
}

// flush emits one batch per dirty top-level folder.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.groups) == 0 {
		return
	}

	for folder, group := range d.groups {
		events := make([]FileEvent, 0, len(group))
		for _, pe := range group {
			events = append(events, pe.event)
		}

		select {
		case d.output <- events:
		default:
			slog.Warn("debouncer output full, dropping batch",
				slog.String("folder", folder),
				slog.Int("batch_size", len(events)),
			)
		}
	}
	d.groups = make(map[string]map[string]*pendingEvent)
}

// Output returns the channel of debounced events.
// Events are emitted as one batch per dirty top-level folder.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.stopCh)
	close(d.output)
}
