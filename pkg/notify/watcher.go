package notify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Watcher observes the shared store file and publishes external writes to a
// bus. It is the cross-process counterpart of the browser storage event: a
// change made by another process shows up here as a Change with the new
// serialized value.
//
// The watcher compares each read against the last payload it delivered and
// stays silent when they match, so a process is not re-notified of a value it
// already holds. This mirrors the platform convention that the writing tab
// does not receive its own storage event.
type Watcher struct {
	path string
	bus  *Bus
	fsw  *fsnotify.Watcher
	log  zerolog.Logger

	mu   sync.Mutex
	last []byte
	wg   sync.WaitGroup
}

// NewWatcher watches path and publishes changes to bus. The watch is placed
// on the parent directory because atomic saves replace the file by rename,
// which would drop a watch on the file itself.
func NewWatcher(path string, bus *Bus) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w := &Watcher{
		path: path,
		bus:  bus,
		fsw:  fsw,
		log:  log.With().Str("component", "watcher").Str("path", path).Logger(),
	}
	// Seed the comparison value so startup state is not re-delivered.
	if data, err := os.ReadFile(path); err == nil {
		w.last = data
	}
	return w, nil
}

// Start runs the watch loop until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

func (w *Watcher) run(ctx context.Context) {
	// Track this process's own writes, announced on the bus, so the
	// filesystem event they cause is not echoed back as external.
	local, cancel := w.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-local:
			if !ok {
				return
			}
			if !c.External {
				w.MarkDelivered(c.Payload)
			}
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.deliver()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// deliver reads the current file content and publishes it if it differs from
// the last delivered value.
func (w *Watcher) deliver() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn().Err(err).Msg("read store file")
		}
		return
	}

	w.mu.Lock()
	if bytes.Equal(data, w.last) {
		w.mu.Unlock()
		return
	}
	w.last = data
	w.mu.Unlock()

	w.bus.Publish(Change{Payload: data, External: true})
}

// MarkDelivered records a payload written by this process so the watcher does
// not echo it back as an external change.
func (w *Watcher) MarkDelivered(payload []byte) {
	w.mu.Lock()
	w.last = payload
	w.mu.Unlock()
}

func (w *Watcher) Close() error {
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
