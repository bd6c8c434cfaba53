// Package watch re-runs analysis when watched source trees change. It
// watches every directory under a root, coalesces filesystem events over
// a debounce window, and suppresses events whose content hash has not
// changed since the last flush.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/codeatlas/internal/discover"
	"github.com/jward/codeatlas/internal/model"
)

// Config configures the file watcher.
type Config struct {
	// Root is the directory tree to watch
	Root string

	// Debounce is how long to wait for more changes before flushing
	Debounce time.Duration

	// Logger for watch events
	Logger *slog.Logger
}

// Change is one debounced batch of relevant file changes. Paths are
// relative to the watched root and deduplicated.
type Change struct {
	Paths []string
}

// Watcher watches a tree for source and documentation changes.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// Debouncing: collect changes before flushing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	// Content hashes for change suppression
	hashMu sync.RWMutex
	hashes map[string]string

	changes chan Change
}

// NewWatcher creates a watcher for the configured root.
func NewWatcher(config Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.Debounce == 0 {
		config.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		changes: make(chan Change, 16),
	}, nil
}

// Changes returns the channel of debounced change batches.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start begins watching. It returns once watches are registered; events
// flow until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.config.Root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.Root,
		"debounce", w.config.Debounce)

	return nil
}

// Stop closes the underlying filesystem watcher. The change channel is
// closed by the event loop once it drains, never here: the loop may still
// be flushing a debounced batch, and only the sender may close.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetHash records the content hash for a file, keyed by relative path.
// Seeding hashes from an initial discovery pass prevents a spurious
// re-run when an editor rewrites a file without changing it.
func (w *Watcher) SetHash(relPath, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[relPath] = hash
}

func (w *Watcher) getHash(relPath string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[relPath]
	return hash, ok
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if path != root && strings.HasPrefix(base, ".") {
			return filepath.SkipDir
		}
		if discover.SkipDir(base) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.changes)

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if discover.Categorize(filepath.Base(path)) == model.CategoryOther {
		// Directory creation still needs a new watch
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	relPath, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected",
		"path", relPath,
		"op", event.Op.String())
}

func (w *Watcher) handleNewDirectory(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || discover.SkipDir(base) {
		return
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
	}
}

// flushPending turns accumulated events into at most one Change batch.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	var changed []string
	for path, op := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath, err := filepath.Rel(w.config.Root, path)
		if err != nil {
			continue
		}
		relPath = filepath.ToSlash(relPath)

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			w.hashMu.Lock()
			delete(w.hashes, relPath)
			w.hashMu.Unlock()
			changed = append(changed, relPath)
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			changed = append(changed, relPath)
			continue
		}

		hash, err := hashFile(path)
		if err != nil {
			w.logger.Warn("Failed to hash changed file",
				"path", relPath,
				"error", err)
			changed = append(changed, relPath)
			continue
		}

		if old, ok := w.getHash(relPath); ok && old == hash {
			continue
		}
		w.SetHash(relPath, hash)
		changed = append(changed, relPath)
	}

	if len(changed) == 0 {
		return
	}

	select {
	case w.changes <- Change{Paths: changed}:
	case <-ctx.Done():
	}
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
