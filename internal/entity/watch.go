package entity

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long Watch waits for a burst of file events to end before
// reloading.
const settle = 100 * time.Millisecond

// Watch reloads the metadata file at path whenever it changes and reports the
// outcome through onChange. The parent directory is watched so editors that
// replace the file by rename are noticed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Registry, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onChange(nil, err)
		case <-timer.C:
			onChange(LoadFile(abs))
		}
	}
}
