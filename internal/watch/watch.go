package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"docrag/internal/domain"
)

// Ingester indexes files by path.
type Ingester interface {
	IngestPaths(ctx context.Context, paths []string) (domain.IngestReport, error)
}

// Options configures a Watcher.
type Options struct {
	Logger logrus.FieldLogger

	// Debounce is how long the watcher waits after the last event before
	// ingesting what has arrived.
	Debounce time.Duration

	// Supports filters which files are ingested. Nil accepts everything.
	Supports func(path string) bool

	// AfterIngest runs after each batch, e.g. to save the index snapshot.
	AfterIngest func(report domain.IngestReport) error
}

// Watcher ingests files as they appear under a set of directories. Each
// path is ingested once; later writes to it are ignored because the index
// cannot remove the entries of the earlier version.
type Watcher struct {
	ingest   Ingester
	opts     Options
	log      logrus.FieldLogger
	ingested map[string]struct{}
}

func New(ingest Ingester, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Supports == nil {
		opts.Supports = func(string) bool { return true }
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{ingest: ingest, opts: opts, log: log, ingested: map[string]struct{}{}}
}

// MarkIngested records paths that are already in the index. Call it
// before Run.
func (w *Watcher) MarkIngested(paths ...string) {
	for _, p := range paths {
		w.ingested[filepath.Clean(p)] = struct{}{}
	}
}

// Run watches dirs recursively until ctx is done.
func (w *Watcher) Run(ctx context.Context, dirs []string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	for _, d := range dirs {
		if err := addTree(fw, d); err != nil {
			return err
		}
	}
	w.log.WithField("dirs", dirs).Info("watching for new documents")

	pending := map[string]struct{}{}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			path := filepath.Clean(ev.Name)
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if ev.Has(fsnotify.Create) {
					if err := addTree(fw, path); err != nil {
						w.log.WithError(err).WithField("dir", path).Warn("cannot watch directory")
					}
				}
				continue
			}
			if strings.HasPrefix(filepath.Base(path), ".") || !w.opts.Supports(path) {
				continue
			}
			if _, done := w.ingested[path]; done {
				w.log.WithField("path", path).Debug("already ingested, ignoring change")
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(w.opts.Debounce)
		case <-timer.C:
			w.flush(ctx, pending)
			pending = map[string]struct{}{}
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	report, err := w.ingest.IngestPaths(ctx, paths)
	if err != nil {
		w.log.WithError(err).Error("ingest failed")
		return
	}
	w.MarkIngested(paths...)
	for _, f := range report.Failures {
		w.log.WithError(f).Warn("document skipped")
	}
	w.log.WithFields(logrus.Fields{"files": len(paths), "chunks": report.Chunks}).Info("ingested new files")
	if w.opts.AfterIngest != nil {
		if err := w.opts.AfterIngest(report); err != nil {
			w.log.WithError(err).Error("after ingest")
		}
	}
}

func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
