package sessions_test

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepo(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	s := sessions.Session{ID: "s1", ExpiresAt: time.Now().Add(time.Hour)}
	s.SetFlag(sessions.FlagOnboardingDone)
	require.NoError(t, repo.Upsert(ctx, s))

	// Mutating the caller's copy must not leak into the repo
	s.PopFlag(sessions.FlagOnboardingDone)
	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Flags[sessions.FlagOnboardingDone])

	require.NoError(t, repo.Delete(ctx, "s1"))
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	assert.Error(t, repo.Upsert(ctx, sessions.Session{}))
}

func TestInMemoryRepoDropsExpired(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()
	require.NoError(t, repo.Upsert(ctx, sessions.Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)}))

	_, err := repo.Get(ctx, "old")
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
	assert.Equal(t, 0, repo.Len())
}
