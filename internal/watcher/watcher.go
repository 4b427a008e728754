// Package watcher reloads domain topology files when they change on
// disk. Static domains have no agent to poll, so a file edit is their
// only report path.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher tracks the topology files of every static domain and invokes
// the change callback with the owning domain when one is rewritten.
type Watcher struct {
	onChange func(domain string)
	debounce time.Duration

	mu     sync.Mutex
	byPath map[string]string // absolute file path -> domain name
	timers map[string]*time.Timer
}

// New creates a watcher. onChange receives the domain whose topology
// file changed, after debouncing.
func New(onChange func(domain string)) *Watcher {
	return &Watcher{
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		byPath:   make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Track registers one domain's topology file. Must be called before
// Watch starts.
func (w *Watcher) Track(domain, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if owner, taken := w.byPath[abs]; taken {
		return fmt.Errorf("topology file %s already tracked for domain %s", abs, owner)
	}
	w.byPath[abs] = domain
	return nil
}

// Watch blocks until the context is cancelled or the watch cannot be
// established. Watching the containing directories rather than the files
// themselves survives editors that replace files on save.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w.mu.Lock()
	dirs := make(map[string]struct{})
	for path := range w.byPath {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	w.mu.Unlock()
	if len(dirs) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	log.Printf("Watching %d topology file(s) for changes", w.trackedCount())

	defer w.stopTimers()
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.fileTouched(event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fileTouched debounces per tracked file and fires the domain callback.
func (w *Watcher) fileTouched(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	domain, tracked := w.byPath[abs]
	if !tracked {
		return
	}
	if t, running := w.timers[abs]; running {
		t.Stop()
	}
	w.timers[abs] = time.AfterFunc(w.debounce, func() {
		log.Printf("Topology changed for domain %s: %s", domain, abs)
		w.onChange(domain)
	})
}

func (w *Watcher) trackedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byPath)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
}
