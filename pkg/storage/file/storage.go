// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package file provides a file-based implementation of the storage.Backend
// interface. It stores key-value pairs as files in a directory hierarchy
// and is thread-safe.
package file

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// Default file permissions (owner rw only)
	defaultFilePerms = 0600
)

// FileStorage is a file-based implementation of storage.Backend.
type FileStorage struct {
	mu      sync.RWMutex
	rootDir string
}

// New creates a new FileStorage instance with the specified root directory.
// The root directory is created with 0700 permissions if it doesn't exist.
func New(rootDir string) (*FileStorage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}

	if err := os.MkdirAll(rootDir, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}

	return &FileStorage{
		rootDir: rootDir,
	}, nil
}

// Get retrieves the value for the given key.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Get(key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to read key %q: %w", key, err)
	}

	return data, nil
}

// Put stores the value for the given key. The value is written to a
// temporary file and renamed into place so a reader never observes a
// partially-written record.
func (f *FileStorage) Put(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, defaultDirPerms); err != nil {
		return fmt.Errorf("file storage: failed to create directory for key %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("file storage: failed to create temp file for key %q: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}
	if err := tmp.Chmod(defaultFilePerms); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file storage: failed to set permissions for key %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file storage: failed to close temp file for key %q: %w", key, err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file storage: failed to persist key %q: %w", key, err)
	}

	return nil
}

// Delete removes the key and its value from storage.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file storage: failed to stat key %q: %w", key, err)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("file storage: failed to delete key %q: %w", key, err)
	}

	return nil
}

// List returns all keys with the given prefix, sorted.
func (f *FileStorage) List(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0)

	err := filepath.WalkDir(f.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Skip in-flight temp files
		if strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}

		key, err := f.pathToKey(path)
		if err != nil {
			return err
		}

		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("file storage: failed to list keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Exists checks if a key exists in storage.
func (f *FileStorage) Exists(key string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("file storage: failed to check key %q: %w", key, err)
	}

	return true, nil
}

// Close releases resources held by the backend. FileStorage holds no
// open handles between operations, so this is a no-op.
func (f *FileStorage) Close() error {
	return nil
}

// keyToPath converts a storage key to an absolute file path, rejecting
// keys that would escape the root directory.
func (f *FileStorage) keyToPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("file storage: key cannot be empty")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("file storage: invalid key %q", key)
		}
	}
	return filepath.Join(f.rootDir, filepath.FromSlash(key)), nil
}

// pathToKey converts an absolute file path back to a storage key.
func (f *FileStorage) pathToKey(path string) (string, error) {
	rel, err := filepath.Rel(f.rootDir, path)
	if err != nil {
		return "", fmt.Errorf("file storage: path %q outside root: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}
