package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileStore keeps all entries in one JSON file, keyed by server. Writes take
// a lock file and replace the file atomically, so several CLI processes can
// share it.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// FileOption configures a FileStore
type FileOption func(*FileStore)

// WithFileLogger sets the logger for lock housekeeping failures
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *FileStore) {
		if l != nil {
			f.logger = l
		}
	}
}

// entryMap is the on-disk layout
type entryMap struct {
	Entries map[string]*Entry `json:"entries"` // key = KeyFor(server URL)
}

// NewFileStore creates a store backed by path. The file is created on first write.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	f := &FileStore{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the backing file
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context, key string) (*Entry, error) {
	m, err := f.read()
	if err != nil {
		return nil, err
	}
	e, ok := m.Entries[key]
	if !ok || e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

func (f *FileStore) Update(ctx context.Context, key string, fn func(*Entry) error) error {
	lock, err := acquireFileLock(ctx, f.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			f.logger.Warn("failed to release lock", "path", f.path, "error", releaseErr)
		}
	}()

	// Read inside the lock; an unreadable file starts over empty.
	m, err := f.read()
	if err != nil {
		m = &entryMap{Entries: make(map[string]*Entry)}
	}

	next, err := apply(m.Entries[key], fn)
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.Entries, key)
	} else {
		m.Entries[key] = next
	}

	return f.write(m)
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	return f.Update(ctx, key, func(e *Entry) error {
		*e = Entry{}
		return nil
	})
}

func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) read() (*entryMap, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &entryMap{Entries: make(map[string]*Entry)}, nil
	}
	if err != nil {
		return nil, err
	}

	var m entryMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]*Entry)
	}
	return &m, nil
}

// write replaces the file through a temp file and rename.
func (f *FileStore) write(m *entryMap) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, f.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
