package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ytget/streamsession/internal/logger"
)

// File stores one JSON document per key under a directory. Writes go through
// a temporary file and a rename.
type File struct {
	rootDir string
	mu      sync.RWMutex
	now     func() time.Time
}

// NewFile creates a file-backed store under rootDir, creating it if needed.
func NewFile(rootDir string) (*File, error) {
	if rootDir == "" {
		return nil, errors.New("store: rootDir is required")
	}
	if err := os.MkdirAll(rootDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", rootDir, err)
	}
	return &File{rootDir: rootDir, now: time.Now}, nil
}

type fileEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (f *File) filenameForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.rootDir, fmt.Sprintf("%x.json", sum[:]))
}

// Get implements Store. Corrupt entries are removed and reported missing.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	fn := f.filenameForKey(key)
	b, err := os.ReadFile(fn)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: read %q: %w", key, err)
	}
	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil || e.Key != key {
		logger.WithComponent(logger.ComponentStore).Warn("dropping unreadable entry", map[string]interface{}{
			"key":  key,
			"file": filepath.Base(fn),
		})
		_ = os.Remove(fn)
		return "", false, nil
	}
	return e.Value, true, nil
}

// Set implements Store.
func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn := f.filenameForKey(key)
	b, err := json.Marshal(fileEntry{Key: key, Value: value, UpdatedAt: f.now().UTC()})
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("store: write %q: %w", key, err)
	}
	if err := os.Rename(tmp, fn); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: commit %q: %w", key, err)
	}
	return nil
}

// Delete implements Store. Deleting a missing key is not an error.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.filenameForKey(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}
