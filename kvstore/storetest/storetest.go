// Package storetest holds the behavior every kvstore.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jrsteele09/ingredient-sheets/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the kvstore.Store contract.
func Run(t *testing.T, newStore func(t *testing.T) kvstore.Store) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		v, found, err := s.Get(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("one")))
		require.NoError(t, s.Set(ctx, "k", []byte("two")))

		v, found, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("two"), v)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("v")))
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))

		_, found, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("compare and swap", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		ok, err := s.CompareAndSwap(ctx, "k", nil, []byte("a"))
		require.NoError(t, err)
		assert.True(t, ok, "insert when absent")

		ok, err = s.CompareAndSwap(ctx, "k", nil, []byte("b"))
		require.NoError(t, err)
		assert.False(t, ok, "insert when present must fail")

		ok, err = s.CompareAndSwap(ctx, "k", []byte("x"), []byte("b"))
		require.NoError(t, err)
		assert.False(t, ok, "stale prev must fail")

		ok, err = s.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"))
		require.NoError(t, err)
		assert.True(t, ok)

		v, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), v)

		ok, err = s.CompareAndSwap(ctx, "k", []byte("b"), nil)
		require.NoError(t, err)
		assert.True(t, ok, "swap to nil deletes")

		_, found, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)

		ok, err = s.CompareAndSwap(ctx, "absent", []byte("b"), []byte("c"))
		require.NoError(t, err)
		assert.False(t, ok, "update of absent key must fail")
	})

	t.Run("concurrent inserts have one winner", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		const workers = 8
		var wg sync.WaitGroup
		wins := make(chan string, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				value := fmt.Sprintf("v%d", i)
				ok, err := s.CompareAndSwap(ctx, "race", nil, []byte(value))
				assert.NoError(t, err)
				if ok {
					wins <- value
				}
			}(i)
		}
		wg.Wait()
		close(wins)

		var winners []string
		for w := range wins {
			winners = append(winners, w)
		}
		require.Len(t, winners, 1)

		v, _, err := s.Get(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, winners[0], string(v))
	})
}
