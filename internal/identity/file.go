package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// fileRecord is the on-disk layout of a FileStore.
type fileRecord struct {
	UserID string `json:"user_id"`
}

// FileStore keeps the identifier in a small JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path. The file and its
// directory are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Load returns the saved identifier, or "" when the file does not exist.
func (s *FileStore) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("identity: read %s: %w", s.path, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("identity: decode %s: %w", s.path, err)
	}
	return rec.UserID, nil
}

// Save writes the identifier atomically.
func (s *FileStore) Save(_ context.Context, userID string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("identity: mkdir: %w", err)
	}
	data, err := json.Marshal(fileRecord{UserID: userID})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("identity: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("identity: rename: %w", err)
	}
	return nil
}

// Clear removes the file.
func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("identity: remove: %w", err)
	}
	return nil
}
