// Package filesystem discovers and watches source documents in a local
// directory tree.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// DefaultSettle is how long a path must stay quiet before its change is
// reported. Copying a large PDF produces a burst of write events.
const DefaultSettle = 500 * time.Millisecond

// Connector discovers supported documents under a root directory.
type Connector struct {
	rootPath string
	settle   time.Duration

	mu      sync.Mutex
	closed  bool
	watcher *fsnotify.Watcher
}

// Option configures a Connector.
type Option func(*Connector)

// WithSettle overrides the quiet period applied to watched changes.
func WithSettle(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.settle = d
		}
	}
}

// New creates a filesystem connector rooted at rootPath.
func New(rootPath string, opts ...Option) *Connector {
	c := &Connector{
		rootPath: ResolvePath(rootPath),
		settle:   DefaultSettle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return "filesystem"
}

// Root returns the watched directory.
func (c *Connector) Root() string {
	return c.rootPath
}

// Validate checks that the root path is an existing directory.
func (c *Connector) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(c.rootPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("root path does not exist: %s", c.rootPath)
	}
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path is not a directory: %s", c.rootPath)
	}
	return nil
}

// Discover walks the root and returns the supported files, sorted.
// Hidden files and directories are skipped.
func (c *Connector) Discover(ctx context.Context) ([]string, error) {
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}

	var paths []string
	err := filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skip %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != c.rootPath && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && isSupported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	logger.Debug("discovered %d documents under %s", len(paths), c.rootPath)
	return paths, nil
}

// Watch reports changes to supported files until ctx is cancelled or the
// connector is closed. Events for one path are coalesced until the path has
// been quiet for the settle period. New subdirectories are watched too.
func (c *Connector) Watch(ctx context.Context) (<-chan domain.SourceChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connector is closed")
	}
	if c.watcher != nil {
		return nil, errors.New("connector is already watching")
	}
	if err := c.Validate(ctx); err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := addTree(watcher, c.rootPath); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	c.watcher = watcher

	out := make(chan domain.SourceChange)
	go c.watchLoop(ctx, watcher, out)
	return out, nil
}

// pendingChange is a coalesced change with the time of its last event.
type pendingChange struct {
	op domain.ChangeOp
	at time.Time
}

func (c *Connector) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- domain.SourceChange) {
	defer close(out)
	defer c.release(watcher)

	tick := time.NewTicker(c.settle / 2)
	defer tick.Stop()

	pending := make(map[string]pendingChange)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) && !isHidden(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						logger.Warn("watch %s: %v", event.Name, err)
					}
					continue
				}
			}
			change := c.handleFsEvent(event)
			if change == nil {
				continue
			}
			prev, seen := pending[change.Path]
			pending[change.Path] = pendingChange{op: mergeOps(prev.op, change.Op, seen), at: time.Now()}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: %v", err)

		case now := <-tick.C:
			for _, path := range settled(pending, now, c.settle) {
				change := domain.SourceChange{Path: path, Op: pending[path].op}
				delete(pending, path)
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// release closes the watcher once its loop has ended, so Watch can be
// called again.
func (c *Connector) release(watcher *fsnotify.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher == watcher {
		_ = watcher.Close()
		c.watcher = nil
	}
}

// handleFsEvent translates a raw event into a change, or nil when the event
// concerns a hidden, unsupported or non-regular file.
func (c *Connector) handleFsEvent(event fsnotify.Event) *domain.SourceChange {
	if isHidden(event.Name) || !isSupported(event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &domain.SourceChange{Path: event.Name, Op: domain.ChangeDeleted}
	case event.Has(fsnotify.Create):
		if !isRegularFile(event.Name) {
			return nil
		}
		return &domain.SourceChange{Path: event.Name, Op: domain.ChangeCreated}
	case event.Has(fsnotify.Write):
		if !isRegularFile(event.Name) {
			return nil
		}
		return &domain.SourceChange{Path: event.Name, Op: domain.ChangeModified}
	default:
		return nil
	}
}

// mergeOps folds a new event into the pending change for the same path.
func mergeOps(prev, next domain.ChangeOp, seen bool) domain.ChangeOp {
	if !seen {
		return next
	}
	switch {
	case next == domain.ChangeDeleted:
		return domain.ChangeDeleted
	case prev == domain.ChangeDeleted:
		// Removed and written again, e.g. an editor saving atomically.
		return domain.ChangeModified
	case prev == domain.ChangeCreated:
		return domain.ChangeCreated
	default:
		return next
	}
}

// settled returns the pending paths quiet for at least d, sorted.
func settled(pending map[string]pendingChange, now time.Time, d time.Duration) []string {
	var paths []string
	for path, p := range pending {
		if now.Sub(p.at) >= d {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Close stops watching. It is safe to call more than once.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.watcher != nil {
		err := c.watcher.Close()
		c.watcher = nil
		return err
	}
	return nil
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isSupported(path string) bool {
	return domain.DetectSourceType(path) != ""
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
