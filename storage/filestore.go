package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore persists each key as one file under a data folder. Writes go
// through a temp file and rename so concurrent readers in other processes
// never observe a torn value.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] MkdirAll")
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) Set(key string, value []byte) error {
	tmp, err := os.CreateTemp(fs.dir, "kv-*")
	if err != nil {
		return errors.Wrap(err, "[FileStore.Set] CreateTemp")
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "[FileStore.Set] Write")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "[FileStore.Set] Close")
	}
	if err := os.Rename(tmp.Name(), fs.path(key)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "[FileStore.Set] Rename")
	}
	return nil
}

func (fs *FileStore) Get(key string) ([]byte, error) {
	value, err := os.ReadFile(fs.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileStore.Get] ReadFile")
	}
	return value, nil
}

func (fs *FileStore) Delete(key string) error {
	err := os.Remove(fs.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Delete] Remove")
	}
	return nil
}

// path maps an arbitrary key onto a safe filename.
func (fs *FileStore) path(key string) string {
	name := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(key))
	return filepath.Join(fs.dir, name+".kv")
}
