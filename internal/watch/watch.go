// Package watch implements supplemented feature #1 from the expanded
// specification: fsnotify-based live reindexing. It watches every
// source with `watch: true` recursively and triggers a debounced
// incremental Builder.Build whenever the tree changes, respecting the
// one-ingest-per-index rule enforced by index.Index.BeginBuild.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/gitignore"
	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/ingest"
)

// DefaultDebounceWindow is the quiet period after the last filesystem
// event before a rebuild fires.
const DefaultDebounceWindow = 500 * time.Millisecond

// alwaysSkipDirs are never registered with fsnotify, regardless of a
// source's ignore configuration: descending into them risks exhausting
// the host's inotify watch budget on large checkouts.
var alwaysSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
}

// Watcher drives live reindexing for one open Index.
type Watcher struct {
	builder *ingest.Builder
	index   *index.Index

	fsw       *fsnotify.Watcher
	debouncer *debouncer

	// OnBuild, if set, is called after every triggered rebuild attempt
	// (including ones skipped because an ingest was already in progress).
	OnBuild func(stats ingest.Stats, err error)
}

// New creates a Watcher that rebuilds ix via builder on file changes.
func New(builder *ingest.Builder, ix *index.Index) *Watcher {
	return &Watcher{builder: builder, index: ix}
}

// Run registers watches on every configured source root and blocks,
// triggering rebuilds until ctx is canceled. It returns nil on clean
// shutdown.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return gundogerrors.Wrap(gundogerrors.CodeInternal, err)
	}
	w.fsw = fsw
	defer fsw.Close()

	w.debouncer = newDebouncer(DefaultDebounceWindow)
	defer w.debouncer.stop()

	watched := 0
	for _, src := range w.index.Config.Sources {
		if !src.Watch {
			continue
		}
		watched++
		if err := w.addRecursive(src.Path, src.GitignoreEnabled()); err != nil {
			slog.Warn("watch: failed to register source root", slog.String("path", src.Path), slog.Any("error", err))
		}
	}
	if watched == 0 {
		slog.Debug("watch: no source has watch:true, nothing to do")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch: fsnotify error", slog.Any("error", err))
		case <-w.debouncer.triggers():
			w.rebuild(ctx)
		}
	}
}

// handleEvent reacts to one raw fsnotify event: newly created directories
// are registered for watching, and every event schedules a debounced
// rebuild.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !alwaysSkipDirs[filepath.Base(ev.Name)] {
			if err := w.fsw.Add(ev.Name); err != nil {
				slog.Warn("watch: failed to add new directory", slog.String("path", ev.Name), slog.Any("error", err))
			}
		}
	}
	w.debouncer.signal()
}

// rebuild runs an incremental build. A busy index (a manual `gundog
// ingest` already running) is logged and skipped rather than retried --
// the next filesystem event will schedule another attempt.
func (w *Watcher) rebuild(ctx context.Context) {
	stats, err := w.builder.Build(ctx, w.index, false)
	if err != nil && gundogerrors.CodeOf(err) == gundogerrors.CodeIndexBusy {
		slog.Debug("watch: skipped rebuild, ingest already in progress")
		if w.OnBuild != nil {
			w.OnBuild(stats, err)
		}
		return
	}
	if err != nil {
		slog.Error("watch: rebuild failed", slog.Any("error", err))
	} else {
		slog.Info("watch: rebuild complete",
			slog.Int("added", stats.Added), slog.Int("modified", stats.Modified), slog.Int("removed", stats.Removed))
	}
	if w.OnBuild != nil {
		w.OnBuild(stats, err)
	}
}

// addRecursive registers root and every non-ignored subdirectory beneath
// it with the fsnotify watcher.
func (w *Watcher) addRecursive(root string, useGitignore bool) error {
	matcher := gitignore.New()
	if useGitignore {
		_ = matcher.AddFromFile(filepath.Join(root, ".gitignore"), root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort: skip unreadable subtrees
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if path != root && alwaysSkipDirs[base] {
			return filepath.SkipDir
		}
		if path != root && useGitignore && matcher.Match(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return nil //nolint:nilerr // a single unwatchable directory should not abort the whole tree
		}
		return nil
	})
}
