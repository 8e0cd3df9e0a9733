package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in a YAML file. Writes replace the file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path; the file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Int returns the integer stored under key; ok is false when the key is absent.
func (f *FileStore) Int(key string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return 0, false, err
	}
	v, ok := values[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.(int)
	if !ok {
		return 0, false, fmt.Errorf("prefs %s: %s is %T, not an integer", f.path, key, v)
	}
	return n, true, nil
}

// SetInt stores an integer under key.
func (f *FileStore) SetInt(key string, v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = v
	return f.save(values)
}

// Version implements store.VersionStore.
func (f *FileStore) Version(_ context.Context) (int, bool, error) {
	return f.Int(VersionKey)
}

// SetVersion implements store.VersionStore.
func (f *FileStore) SetVersion(_ context.Context, v int) error {
	return f.SetInt(VersionKey, v)
}

func (f *FileStore) load() (map[string]any, error) {
	values := map[string]any{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", f.path, err)
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

func (f *FileStore) save(values map[string]any) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create prefs dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}
