// Package blob abstracts the blob store holding raw uploaded documents.
// The pipeline only ever downloads a source by its opaque reference and
// removes it after successful extraction; everything else about the storage
// backend is deliberately out of scope.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when the referenced blob does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store is the blob-store collaborator consumed by the extraction worker.
// Implementations must be safe for concurrent use.
type Store interface {
	// Download returns the raw bytes of the blob at ref.
	Download(ctx context.Context, ref string) ([]byte, error)
	// Remove deletes the blob at ref. Removing a missing blob is not an error.
	Remove(ctx context.Context, ref string) error
}

// FSStore is a Store backed by a local directory. References are paths
// relative to the root; absolute paths and parent traversal are rejected.
type FSStore struct {
	// root is the directory all references resolve under.
	root string
}

// NewFSStore constructs an FSStore rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob: root directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("blob: create root %s: %w", dir, err)
	}
	return &FSStore{root: dir}, nil
}

// resolve maps a reference to an absolute path under the root, rejecting
// anything that would escape it.
func (s *FSStore) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("blob: empty reference")
	}
	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("blob: reference %q escapes the store root", ref)
	}
	return filepath.Join(s.root, clean), nil
}

// Download returns the raw bytes of the blob at ref.
func (s *FSStore) Download(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob: %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", ref, err)
	}
	return data, nil
}

// Remove deletes the blob at ref. Missing blobs are ignored so cleanup is
// idempotent.
func (s *FSStore) Remove(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: remove %s: %w", ref, err)
	}
	return nil
}

// Put writes data to ref, creating intermediate directories. Used by the CLI
// to stage local files into the store before starting a job.
func (s *FSStore) Put(_ context.Context, ref string, data []byte) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("blob: mkdir for %s: %w", ref, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("blob: write %s: %w", ref, err)
	}
	return nil
}
