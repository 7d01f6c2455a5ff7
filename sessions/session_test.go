package sessions_test

import (
	"testing"

	"github.com/jrsteele09/ingredient-sheets/sessions"
	"github.com/stretchr/testify/assert"
)

func TestSessionStateMachine(t *testing.T) {
	s := &sessions.Session{ID: "s1"}
	assert.Equal(t, sessions.StateAnonymous, s.State())

	s.OAuthState = "state-1"
	assert.Equal(t, sessions.StateAwaitingCallback, s.State())

	s.Identity = "alice@example.com"
	assert.Equal(t, sessions.StateAwaitingCallback, s.State(), "identity without a resource is not authenticated")

	s.Authenticate("alice@example.com", "sheet-1")
	assert.Equal(t, sessions.StateAuthenticated, s.State())
	assert.Empty(t, s.OAuthState)
	assert.Equal(t, "authenticated", s.State().String())
}

func TestPopFlagIsReadOnce(t *testing.T) {
	s := &sessions.Session{ID: "s1"}
	assert.False(t, s.PopFlag(sessions.FlagOnboardingDone), "unset flag returns the default")

	s.SetFlag(sessions.FlagOnboardingDone)
	assert.True(t, s.PopFlag(sessions.FlagOnboardingDone))
	assert.False(t, s.PopFlag(sessions.FlagOnboardingDone))
	assert.False(t, s.PopFlag(sessions.FlagOnboardingDone))
}
