package usage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// LimitsFile watches a JSON override file and pushes valid limit changes
// to the limiter while the service runs.
type LimitsFile struct {
	mu      sync.Mutex
	path    string
	watcher *fsnotify.Watcher
	apply   func(Limits)
}

// NewLimitsFile loads the override file (writing current limits when the
// file does not exist yet) and starts watching it for edits. Valid
// updates are handed to apply.
func NewLimitsFile(path string, current Limits, apply func(Limits)) (*LimitsFile, error) {
	lf := &LimitsFile{path: path, apply: apply}

	limits, err := lf.load()
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ Usage limits file unreadable, keeping current limits: %v", err)
		}
		if saveErr := lf.save(current); saveErr != nil {
			log.Printf("⚠️ Failed to write usage limits file: %v", saveErr)
		}
	} else {
		apply(limits)
	}

	if err := lf.startWatcher(); err != nil {
		log.Printf("⚠️ Failed to start usage limits watcher: %v", err)
	}

	return lf, nil
}

// load reads and validates the override file.
func (lf *LimitsFile) load() (Limits, error) {
	data, err := os.ReadFile(lf.path)
	if err != nil {
		return Limits{}, err
	}

	var limits Limits
	if err := json.Unmarshal(data, &limits); err != nil {
		return Limits{}, err
	}

	if err := validateLimits(limits); err != nil {
		return Limits{}, err
	}
	return limits.Normalized(), nil
}

// save writes the limits to the override file.
func (lf *LimitsFile) save(limits Limits) error {
	if err := os.MkdirAll(filepath.Dir(lf.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(limits, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(lf.path, data, 0644)
}

// Update validates, writes, and applies new limits.
func (lf *LimitsFile) Update(limits Limits) error {
	if err := validateLimits(limits); err != nil {
		return err
	}

	normalized := limits.Normalized()

	lf.mu.Lock()
	err := lf.save(normalized)
	lf.mu.Unlock()
	if err != nil {
		return err
	}

	lf.apply(normalized)
	return nil
}

// startWatcher watches the file's directory; editors often replace files
// via atomic rename/create rather than in-place writes.
func (lf *LimitsFile) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	lf.watcher = watcher

	base := filepath.Base(lf.path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				log.Printf("📝 Usage limits file updated, reloading...")
				limits, err := lf.load()
				if err != nil {
					log.Printf("⚠️ Failed to reload usage limits: %v", err)
					continue
				}
				lf.apply(limits)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ Usage limits watcher error: %v", err)
			}
		}
	}()

	dir := filepath.Dir(lf.path)
	if err := watcher.Add(dir); err != nil {
		return watcher.Add(lf.path)
	}
	return nil
}

// Close stops the file watcher.
func (lf *LimitsFile) Close() error {
	if lf.watcher != nil {
		return lf.watcher.Close()
	}
	return nil
}

// validateLimits rejects nonsensical ceilings before normalization.
func validateLimits(limits Limits) error {
	const maxPerDay = 100000

	if limits.PerMinute < 1 || limits.PerHour < 1 || limits.PerDay < 1 {
		return fmt.Errorf("usage limits must be positive")
	}
	if limits.PerDay > maxPerDay {
		return fmt.Errorf("perDay cannot exceed %d", maxPerDay)
	}
	return nil
}
