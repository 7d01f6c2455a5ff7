package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/ingredient-sheets/kvstore"
)

var _ kvstore.Store = (*FakeStore)(nil)

type FakeStore struct {
	lock   sync.RWMutex
	values map[string][]byte

	// Calls counts every operation, keyed by method name.
	Calls map[string]int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string][]byte),
		Calls:  make(map[string]int),
	}
}

func (fs *FakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.Calls["Get"]++

	v, ok := fs.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (fs *FakeStore) Set(_ context.Context, key string, value []byte) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.Calls["Set"]++

	fs.values[key] = append([]byte(nil), value...)
	return nil
}

func (fs *FakeStore) CompareAndSwap(_ context.Context, key string, prev, next []byte) (bool, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.Calls["CompareAndSwap"]++

	current, found := fs.values[key]
	if !kvstore.Matches(current, found, prev) {
		return false, nil
	}
	if next == nil {
		delete(fs.values, key)
	} else {
		fs.values[key] = append([]byte(nil), next...)
	}
	return true, nil
}

func (fs *FakeStore) Delete(_ context.Context, key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.Calls["Delete"]++

	delete(fs.values, key)
	return nil
}

func (fs *FakeStore) Close() error {
	return nil
}

// Keys returns a snapshot of the stored keys.
func (fs *FakeStore) Keys() []string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	keys := make([]string, 0, len(fs.values))
	for k := range fs.values {
		keys = append(keys, k)
	}
	return keys
}
