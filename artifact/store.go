// Package artifact persists binary artifacts (serialized tables, trained
// models) under a directory, naming each with a random identifier. Callers
// keep the project/plugin association themselves; nothing identifying is
// embedded in the artifact.
package artifact

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/prcore/prcore/errors"
)

// Store is a file-backed artifact store rooted at one directory.
type Store struct {
	dir string
}

// NewStore creates the directory if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "artifact", "NewStore", "create "+dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes data under a freshly generated name and returns that name.
func (s *Store) Put(data []byte) (string, error) {
	name := uuid.NewString()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.WrapTransient(err, "artifact", "Put", "write "+name)
	}
	return name, nil
}

// Get reads the named artifact. A missing artifact maps to ErrArtifactMissing
// so callers can distinguish it from I/O faults.
func (s *Store) Get(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.WrapInvalid(errors.ErrArtifactMissing, "artifact", "Get", "read "+name)
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "artifact", "Get", "read "+name)
	}
	return data, nil
}

// Delete removes the named artifact. Missing artifacts are a no-op.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapTransient(err, "artifact", "Delete", "remove "+name)
	}
	return nil
}

// path rejects names that would escape the store directory.
func (s *Store) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", errors.WrapInvalid(errors.ErrArtifactMissing, "artifact", "path", "reject name "+name)
	}
	return filepath.Join(s.dir, name), nil
}
