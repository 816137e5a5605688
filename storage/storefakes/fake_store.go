package storefakes

import (
	"sync"

	"github.com/saltyvip/turnstile/storage"
)

var _ storage.Store = (*FakeStore)(nil)

type FakeStore struct {
	values map[string][]byte
	lock   sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string][]byte)}
}

func (fs *FakeStore) Set(key string, value []byte) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	copied := make([]byte, len(value))
	copy(copied, value)
	fs.values[key] = copied
	return nil
}

func (fs *FakeStore) Get(key string) ([]byte, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	value, ok := fs.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

func (fs *FakeStore) Delete(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	delete(fs.values, key)
	return nil
}

// Len reports the number of stored keys.
func (fs *FakeStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.values)
}
