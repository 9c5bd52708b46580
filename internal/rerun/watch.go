package rerun

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange once for every burst of changes under the trees. A
// burst ends when nothing changed for debounce. Directories created while
// watching are watched too. Watch returns nil when ctx is done.
func Watch(ctx context.Context, d Directives, debounce time.Duration, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	dirs, err := d.dirs()
	if err != nil {
		return err
	}
	for _, tree := range d.Trees {
		if st, err := os.Stat(tree); err == nil && !st.IsDir() {
			dirs = append(dirs, tree)
		}
	}
	if len(dirs) == 0 {
		return fmt.Errorf("nothing to watch")
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	timer := time.NewTimer(debounce)
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
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					w.Add(ev.Name)
				}
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)
		case <-timer.C:
			onChange()
		}
	}
}
