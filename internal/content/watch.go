package content

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDelay = 250 * time.Millisecond

// Watch reloads the library file at path whenever it changes and hands each
// valid result to onChange. A file that fails to load, or that onChange
// refuses, is logged and skipped, so the caller keeps serving the last good
// library. Watch blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself because most
// editors save by writing a temp file and renaming it over the original.
func Watch(ctx context.Context, path string, delay time.Duration, onChange func(*Library) error) error {
	if delay <= 0 {
		delay = defaultReloadDelay
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("library path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Printf("Watching content library %s for changes", abs)

	timer := time.NewTimer(delay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(delay)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("content watcher error: %v", err)

		case <-timer.C:
			lib, err := LoadFile(abs)
			if err != nil {
				log.Printf("Content library reload rejected, keeping previous: %v", err)
				continue
			}
			if err := onChange(lib); err != nil {
				log.Printf("Content library v%d rejected, keeping previous: %v", lib.Version(), err)
				continue
			}
			log.Printf("Content library v%d reloaded: modules=%d premises=%d", lib.Version(), lib.ModuleCount(), lib.PremiseCount())
		}
	}
}
