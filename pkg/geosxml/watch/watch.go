// Package watch re-runs deck preprocessing whenever one of the files a deck was built from
// changes on disk.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml"
)

// CompileFunc runs one preprocessing pass and returns every file it read. The returned files are
// watched until the next run; they may be returned alongside an error.
type CompileFunc func(ctx context.Context) ([]string, error)

// Stats counts watcher activity
type Stats struct {
	Runs          int
	Failures      int
	Events        int
	LastEventPath string
	LastEventTime time.Time
	LastError     error
}

// Watcher watches the directories of a deck's files and recompiles after changes settle
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	compile     CompileFunc
	inputs      []string
	files       map[string]bool
	dirs        map[string]bool
	pending     map[string]time.Time
	debounceDur time.Duration
	logger      *geosxml.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before a recompile. Default 300ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceDur = d
	}
}

// WithLogger sets the logger. Default is the package-wide geosxml logger.
func WithLogger(logger *geosxml.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher for the given input decks. Inputs are always watched, even when the
// first compile fails before reporting any files.
func New(inputs []string, compile CompileFunc, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:     fw,
		compile:     compile,
		files:       make(map[string]bool),
		dirs:        make(map[string]bool),
		pending:     make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		logger:      geosxml.GetLogger(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.inputs = append(w.inputs, abs)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start compiles once and then watches in the background until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.recompile(ctx, "")

	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the background goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Watcher: error closing: %v", err)
	}
	w.logger.Debug("Watcher: stopped")
}

// Done is closed when the background goroutine exits
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Files returns the files currently watched, sorted
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Stats returns a snapshot of the watcher counters
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watcher: context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher: %v", err)

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] {
		return
	}
	w.logger.Debug("Watcher: %s %s", event.Op, path)
	w.stats.Events++
	w.stats.LastEventPath = path
	w.stats.LastEventTime = time.Now()
	w.pending[path] = time.Now()
}

func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var trigger string
	for path, eventTime := range w.pending {
		if now.Sub(eventTime) < w.debounceDur {
			// wait until every pending file has settled
			w.mu.Unlock()
			return
		}
		trigger = path
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	if trigger != "" {
		w.recompile(ctx, trigger)
	}
}

func (w *Watcher) recompile(ctx context.Context, trigger string) {
	if trigger != "" {
		w.logger.Info("Watcher: %s changed, recompiling", trigger)
	}

	files, err := w.compile(ctx)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastError = err
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Watcher: compile failed: %v", err)
	}
	w.track(append(append([]string(nil), w.inputs...), files...))
}

// track replaces the watched file set. Directories are watched rather than files so editors
// that save by renaming are still seen.
func (w *Watcher) track(files []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.files = make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		w.files[abs] = true

		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("Watcher: cannot watch %s: %v", dir, err)
			continue
		}
		w.dirs[dir] = true
	}
}
