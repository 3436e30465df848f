package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore keeps templates in a JSON object keyed by name. Every operation
// rereads the file under an advisory lock so several processes (server, CLI)
// can share one file.
type FileStore struct {
	path   string
	lock   *flock.Flock
	logger zerolog.Logger
}

// NewFileStore opens path, creating an empty template file when missing
func NewFileStore(path string, logger zerolog.Logger) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create template directory: %w", err)
		}
	}

	s := &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(map[string]Template{}); err != nil {
			return nil, err
		}
		logger.Info().Str("path", path).Msg("Created empty template file")
	}
	return s, nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context, name string) (*Template, error) {
	all, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := all[name]
	if !ok || !t.Active {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *FileStore) Put(ctx context.Context, t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.update(ctx, func(all map[string]Template) bool {
		all[t.Name] = t
		return true
	})
}

func (s *FileStore) Remove(ctx context.Context, name string) (bool, error) {
	removed := false
	err := s.update(ctx, func(all map[string]Template) bool {
		if _, ok := all[name]; !ok {
			return false
		}
		delete(all, name)
		removed = true
		return true
	})
	return removed, err
}

func (s *FileStore) List(ctx context.Context, useCase string) ([]Template, error) {
	all, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	return filterActive(all, useCase), nil
}

func (s *FileStore) readLocked(ctx context.Context) (map[string]Template, error) {
	ok, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock template file: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("lock template file: %s is busy", s.path)
	}
	defer s.unlock()
	return s.read()
}

// update applies fn to the current contents and writes them back if fn
// reports a change
func (s *FileStore) update(ctx context.Context, fn func(map[string]Template) bool) error {
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock template file: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock template file: %s is busy", s.path)
	}
	defer s.unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if !fn(all) {
		return nil
	}
	if err := s.write(all); err != nil {
		return err
	}
	s.logger.Debug().Str("path", s.path).Int("templates", len(all)).Msg("Saved templates")
	return nil
}

func (s *FileStore) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to release template lock")
	}
}

func (s *FileStore) read() (map[string]Template, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]Template{}, nil
		}
		return nil, fmt.Errorf("read templates: %w", err)
	}
	all := map[string]Template{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", s.path, err)
	}
	return all, nil
}

// write replaces the file through a rename so readers never see a partial file
func (s *FileStore) write(all map[string]Template) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write templates: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace templates: %w", err)
	}
	return nil
}
