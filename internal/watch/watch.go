// Package watch notifies callers when JSON document files change on disk,
// the way the teacher's internal/watcher package drives reindexing off
// filesystem events, simplified here to a single flat directory of
// document files feeding the `ftscore watch` command instead of a
// recursive project-wide watch with gitignore reconciliation.
package watch

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a coalesced notification that path changed and is ready to be
// re-read.
type Event struct {
	Path string
	Time time.Time
}

// Watcher watches one directory for .json file creates and writes,
// debouncing rapid-fire events (e.g. editors that write-then-rename) into
// a single Event per settle window.
type Watcher struct {
	fsw      *fsnotify.Watcher
	events   chan Event
	errors   chan error
	done     chan struct{}
	debounce time.Duration
}

// New starts watching dir for .json file changes. The caller must call
// Close when done.
func New(dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	w := &Watcher{
		fsw:      fsw,
		events:   make(chan Event, 64),
		errors:   make(chan error, 8),
		done:     make(chan struct{}),
		debounce: debounce,
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.events)
	defer close(w.errors)

	pending := map[string]*time.Timer{}
	fire := make(chan string, 64)

	for {
		select {
		case <-w.done:
			for _, t := range pending {
				t.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if t, exists := pending[ev.Name]; exists {
				t.Stop()
			}
			name := ev.Name
			pending[name] = time.AfterFunc(w.debounce, func() { fire <- name })

		case name := <-fire:
			delete(pending, name)
			select {
			case w.events <- Event{Path: name, Time: time.Now()}:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// Events returns the debounced change-notification channel.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the non-fatal error channel.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
