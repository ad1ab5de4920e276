package build

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/elijahmorgan/cowrap/internal/logging"
	"github.com/elijahmorgan/cowrap/internal/project"
)

// DefaultDebounce is how long Watch waits after the last change before
// rebuilding.
const DefaultDebounce = 100 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	Options
	Debounce time.Duration
	// Report is called after the initial build and after every rebuild.
	Report func([]Result, error)
}

// Watch builds the project, then rebuilds it whenever an input or the
// configuration file changes, until ctx is done. A config change reloads
// the project before rebuilding; a config that no longer loads is reported
// and the previous one is kept.
func Watch(ctx context.Context, proj *project.Project, opts WatchOptions) error {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	report := opts.Report
	if report == nil {
		report = func([]Result, error) {}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	watched := make(map[string]bool)
	targets := watchTargets(proj)
	if err := addDirs(w, targets, watched); err != nil {
		return err
	}

	force := opts.Options
	force.Force = true
	report(Build(ctx, proj, opts.Options))

	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := false
	configChanged := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(ev.Name)
			if !targets[name] {
				continue
			}
			if name == proj.ConfigPath {
				configChanged = true
			}
			logging.Logger().Debug("change detected", zap.String("path", name), zap.String("op", ev.Op.String()))
			if !pending {
				pending = true
			} else {
				timer.Stop()
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Logger().Warn("watcher error", zap.Error(err))

		case <-timer.C:
			pending = false
			if configChanged {
				configChanged = false
				next, err := project.Open(proj.ConfigPath)
				if err != nil {
					report(nil, err)
					continue
				}
				proj = next
				targets = watchTargets(proj)
				if err := addDirs(w, targets, watched); err != nil {
					report(nil, err)
					continue
				}
			}
			report(Build(ctx, proj, force))
		}
	}
}

// watchTargets returns the files whose changes trigger a rebuild.
func watchTargets(proj *project.Project) map[string]bool {
	targets := map[string]bool{filepath.Clean(proj.ConfigPath): true}
	for _, job := range proj.Config.Jobs {
		input, _ := proj.Resolve(job)
		targets[filepath.Clean(input)] = true
	}
	return targets
}

// addDirs watches the parent directory of every target so that saves by
// rename are seen.
func addDirs(w *fsnotify.Watcher, targets map[string]bool, watched map[string]bool) error {
	for path := range targets {
		dir := filepath.Dir(path)
		if watched[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched[dir] = true
	}
	return nil
}
