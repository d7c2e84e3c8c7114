package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vinculobrasil/flowbot/internal/compiler"
	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// DefaultDebounce coalesces bursts of file events into one reload signal.
const DefaultDebounce = 150 * time.Millisecond

// Loader implements ports.FlowLoader over a directory of *.json, *.yaml and
// *.yml flow documents. A flow's ID is its "id" field, or the file name
// without extension when absent.
type Loader struct {
	dir      string
	parser   *compiler.Parser
	logger   *slog.Logger
	debounce time.Duration

	mu    sync.Mutex
	index map[string]string // flow ID -> file path
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for scan and watch diagnostics.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDebounce overrides the watch debounce window.
func WithDebounce(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.debounce = d
		}
	}
}

// NewLoader creates a loader for dir.
func NewLoader(dir string, opts ...LoaderOption) (*Loader, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid flow directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("flow directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("flow directory: %s is not a directory", abs)
	}

	l := &Loader{
		dir:      abs,
		parser:   compiler.NewParser(),
		logger:   logging.NewNop(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Dir returns the watched directory.
func (l *Loader) Dir() string { return l.dir }

// Load parses the flow with the given ID.
func (l *Loader) Load(ctx context.Context, flowID string) (*domain.Graph, error) {
	path, err := l.locate(flowID)
	if err != nil {
		return nil, err
	}
	g, err := l.parseFile(path)
	if err != nil {
		return nil, err
	}
	if g.ID == "" {
		g.ID = flowID
	}
	return g, nil
}

// List returns the IDs of all parseable flows.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	index, err := l.scan()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Loader) locate(flowID string) (string, error) {
	l.mu.Lock()
	path, ok := l.index[flowID]
	l.mu.Unlock()
	if ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	index, err := l.scan()
	if err != nil {
		return "", err
	}
	if path, ok := index[flowID]; ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
}

// scan rebuilds the ID index. Unparseable files are logged and skipped.
func (l *Loader) scan() (map[string]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow directory: %w", err)
	}

	index := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		if _, ok := compiler.FormatFromPath(path); !ok {
			continue
		}
		g, err := l.parseFile(path)
		if err != nil {
			l.logger.Warn("skipping flow document", "path", path, "err", err)
			continue
		}
		id := g.ID
		if id == "" {
			id = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		if prev, dup := index[id]; dup {
			l.logger.Warn("duplicate flow id, keeping first", "flow_id", id, "kept", prev, "ignored", path)
			continue
		}
		index[id] = path
	}

	l.mu.Lock()
	l.index = index
	l.mu.Unlock()
	return index, nil
}

func (l *Loader) parseFile(path string) (*domain.Graph, error) {
	format, ok := compiler.FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported flow document %s", path)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, path)
		}
		return nil, err
	}
	g, err := l.parser.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return g, nil
}

// Watch signals on the returned channel after flow documents change.
// The channel is closed when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	out := make(chan struct{}, 1)
	go l.watchLoop(ctx, watcher, out)
	return out, nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan struct{}) {
	defer close(out)
	defer watcher.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if _, relevant := compiler.FormatFromPath(event.Name); !relevant {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			l.logger.Debug("flow document changed", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			select {
			case out <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("flow watcher error", "err", err)
		}
	}
}
