package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/logger"
)

// DefaultReloadDebounce collapses editor write bursts into one reload.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watch reloads the stage table at path into t whenever the file changes,
// until ctx is cancelled. A file that fails to parse is logged and the
// previous table stays in effect.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file on save keep triggering reloads.
func (t *Table) Watch(ctx context.Context, path string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create stage file watcher")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to resolve %s", path)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	log := logger.G(ctx).WithField("stage_file", abs)
	log.Info("watching stage table for changes")

	go func() {
		defer watcher.Close()

		var pending *time.Timer
		reload := make(chan struct{}, 1)
		defer func() {
			if pending != nil {
				pending.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				stages, err := LoadStages(abs)
				if err != nil {
					log.WithError(err).Warn("ignoring invalid stage table")
					continue
				}
				t.Set(stages)
				log.WithField("stages", len(stages)).Info("stage table reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Error("stage file watcher error")
			}
		}
	}()

	return nil
}
