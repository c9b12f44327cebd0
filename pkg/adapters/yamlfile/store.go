package yamlfile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last file event before a reload.
const DefaultDebounce = 100 * time.Millisecond

// Store serves the corpus of a bundle file and implements ports.Watchable.
type Store struct {
	*memory.Snapshot

	path     string
	debounce time.Duration
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce sets the quiet period between a file change and the reload.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// WithLogger sets the logger used to report reloads.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open loads the bundle at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	initial, err := Load(ctx, abs)
	if err != nil {
		return nil, err
	}

	s := &Store{
		Snapshot: memory.NewSnapshot(initial),
		path:     abs,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the absolute path of the bundle.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the bundle. On failure the previous corpus keeps serving.
func (s *Store) Reload(ctx context.Context) error {
	next, err := Load(ctx, s.path)
	if err != nil {
		return err
	}
	s.Publish(next)
	return nil
}

// Watch reloads the bundle after it changes on disk and emits its path once
// the new corpus is served. The parent directory is watched so that editors
// replacing the file by rename are followed.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(s.path))
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer w.Close()

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != s.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(s.debounce)
				} else {
					timer.Reset(s.debounce)
				}
				fire = timer.C

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("bundle watcher error", zap.Error(err))

			case <-fire:
				fire = nil
				if err := s.Reload(ctx); err != nil {
					s.logger.Warn("bundle reload failed, keeping previous corpus",
						zap.String("path", s.path), zap.Error(err))
					continue
				}
				s.logger.Info("bundle reloaded", zap.String("path", s.path))
				select {
				case out <- s.path:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
