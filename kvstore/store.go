// Package kvstore defines the durable key-value contract shared by the
// credential store and the provisioning service.
package kvstore

import (
	"bytes"
	"context"
)

// Store is a small key-value store with a conditional write.
//
// CompareAndSwap replaces the value stored at key with next only when the
// current value equals prev. A nil prev means "key must be absent" and a nil
// next deletes the key. It reports whether the swap happened.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Matches reports whether the current state of a key satisfies the prev
// argument of CompareAndSwap.
func Matches(current []byte, found bool, prev []byte) bool {
	if prev == nil {
		return !found
	}
	return found && bytes.Equal(current, prev)
}
