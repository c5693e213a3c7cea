// Package cache stores model results on disk keyed by a hash of their inputs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Key computes a deterministic SHA256 hash of the parts.
// Each part is length-prefixed so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ResearchKey identifies a requirements extraction.
// Order is critical: posting, schema, model.
func ResearchKey(posting, schema, model string) string {
	return Key("research", posting, schema, model)
}

// DefaultDir returns the user cache directory for jobprep.
func DefaultDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = filepath.Join(os.ExpandEnv("$HOME"), ".cache")
	}
	return filepath.Join(dir, "jobprep")
}

// Store is a directory of JSON files. A nil *Store is a disabled cache.
type Store struct {
	dir string
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Path returns the path to the cache file for a given key
func (s *Store) Path(key string) string {
	if s == nil {
		return ""
	}
	return filepath.Join(s.dir, key+".json")
}

// Get decodes the entry for key into v. It reports false on a miss.
func (s *Store) Get(key string, v any) (bool, error) {
	if s == nil {
		return false, nil
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse cache: %w", err)
	}
	return true, nil
}

// Put stores v under key.
func (s *Store) Put(key string, v any) error {
	if s == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return os.Rename(tmp.Name(), s.Path(key))
}

// Clear removes every cached entry and reports how many were removed.
func (s *Store) Clear() (int, error) {
	if s == nil {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return 0, fmt.Errorf("failed to remove %s: %w", m, err)
		}
	}
	return len(matches), nil
}
