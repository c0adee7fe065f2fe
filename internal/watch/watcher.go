// Package watch reloads the Database when its backing file is modified by
// anything other than this process.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Chinzzii/docstore/internal/metrics"
	"github.com/Chinzzii/docstore/internal/store"
)

// Reloader replaces its Database with the result of a loader, serialised
// against concurrent mutations. It's implemented by *store.Store.
type Reloader interface {
	Reload(func() (store.Database, error)) error
}

// Watcher observes a single file. Because saves replace the file by
// renaming over it, the parent directory is watched and events are filtered
// by base name.
type Watcher struct {
	dir      string        // dir holding the watched file
	base     string        // base name of the watched file
	debounce time.Duration // debounce coalesces bursts of events into one reload

	target Reloader
	load   func() (store.Database, error)
	fsw    *fsnotify.Watcher
}

// New returns a Watcher of |path| which reloads |target| using |load|.
// |load| should return a nil Database for content which is unchanged from
// what the process itself last wrote. Watching begins immediately, but
// events are only acted on by Run.
func New(path string, target Reloader, load func() (store.Database, error), debounce time.Duration) (*Watcher, error) {
	var abs, err = filepath.Abs(path)
	if err != nil {
		return nil, errors.WithMessage(err, "resolving watched path")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithMessage(err, "creating fsnotify watcher")
	}
	var w = &Watcher{
		dir:      filepath.Dir(abs),
		base:     filepath.Base(abs),
		debounce: debounce,
		target:   target,
		load:     load,
		fsw:      fsw,
	}
	if err = fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return nil, errors.WithMessagef(err, "watching %s", w.dir)
	}
	return w, nil
}

// Run handles change events until |ctx| is cancelled, then releases the
// underlying watch. It always returns nil once cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	log.WithFields(log.Fields{"dir": w.dir, "file": w.base}).Info("watching for external changes")

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			} else if filepath.Base(ev.Name) != w.base || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.WithFields(log.Fields{"event": ev.Op.String(), "file": ev.Name}).Debug("file event")

			if w.debounce <= 0 {
				w.reload()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.WithField("err", err).Warn("file watcher error")

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	var changed bool
	var err = w.target.Reload(func() (store.Database, error) {
		var db, err = w.load()
		changed = db != nil
		return db, err
	})

	var path = filepath.Join(w.dir, w.base)
	switch {
	case err != nil:
		metrics.ReloadsTotal.WithLabelValues(metrics.Fail).Inc()
		log.WithFields(log.Fields{"path": path, "err": err}).Error("reload skipped; keeping in-memory database")
	case !changed:
		metrics.ReloadsTotal.WithLabelValues(metrics.Unchanged).Inc()
		log.WithField("path", path).Debug("file content unchanged")
	default:
		metrics.ReloadsTotal.WithLabelValues(metrics.Ok).Inc()
		log.WithField("path", path).Info("reloaded database after external change")
	}
}
