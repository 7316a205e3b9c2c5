package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

// FileStore keeps each document as a file under root.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data atomically through a temp file in the target directory.
func (s *FileStore) Put(key string, data []byte) error {
	const op = "blob.FileStore.Put"
	if !validKey(key) {
		return apperr.New(apperr.KindValidation, op, "invalid blob key")
	}

	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to save file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	return nil
}

func (s *FileStore) Get(key string) ([]byte, error) {
	const op = "blob.FileStore.Get"
	if !validKey(key) {
		return nil, apperr.New(apperr.KindValidation, op, "invalid blob key")
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotFound(op, key)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return data, nil
}

func (s *FileStore) Delete(key string) error {
	const op = "blob.FileStore.Delete"
	if !validKey(key) {
		return apperr.New(apperr.KindValidation, op, "invalid blob key")
	}
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
