package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 250 * time.Millisecond

// FileSource streams commands derived from a checks file
type FileSource struct {
	path     string
	debounce time.Duration
	log      *zap.Logger
}

// NewFileSource creates a source for path. log may be nil.
func NewFileSource(path string, log *zap.Logger) *FileSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSource{
		path:     path,
		debounce: DefaultDebounce,
		log:      log.With(zap.String("path", path)),
	}
}

// SetDebounce overrides the reload delay
func (s *FileSource) SetDebounce(d time.Duration) {
	if d > 0 {
		s.debounce = d
	}
}

// Emit loads the file once and sends an add command per check.
func (s *FileSource) Emit(ctx context.Context, out chan<- types.Command) ([]types.Check, error) {
	checks, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	if err := send(ctx, out, Diff(nil, checks)); err != nil {
		return nil, err
	}
	s.log.Info("checks loaded", zap.Int("count", len(checks)))
	return checks, nil
}

// Watch emits the initial checks, then re-reads the file whenever it
// changes and emits the difference. A revision that fails to parse is
// logged and skipped; the last good revision stays in effect. Watch
// returns nil when ctx is cancelled.
func (s *FileSource) Watch(ctx context.Context, out chan<- types.Command) error {
	current, err := s.Emit(ctx, out)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so atomic rename-over saves are seen
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.log.Debug("checks watcher started", zap.String("dir", dir))

	reload := time.NewTimer(s.debounce)
	if !reload.Stop() {
		<-reload.C
	}
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.log.Debug("checks file change detected", zap.Stringer("op", ev.Op))
			reload.Reset(s.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			s.log.Warn("checks watcher error", zap.Error(err))

		case <-reload.C:
			next, err := Load(s.path)
			if err != nil {
				s.log.Warn("checks reload failed, keeping previous revision", zap.Error(err))
				continue
			}
			cmds := Diff(current, next)
			if len(cmds) == 0 {
				s.log.Debug("checks unchanged")
				continue
			}
			if err := send(ctx, out, cmds); err != nil {
				return nil
			}
			current = next
			s.log.Info("checks reloaded", zap.Int("count", len(next)), zap.Int("commands", len(cmds)))
		}
	}
}

func send(ctx context.Context, out chan<- types.Command, cmds []types.Command) error {
	for _, cmd := range cmds {
		select {
		case out <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
