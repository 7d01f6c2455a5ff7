package oauthflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/oauthflow"
	"github.com/jrsteele09/ingredient-sheets/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newTokenServer(t *testing.T, handler http.HandlerFunc) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func grantHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "code-1", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-1", r.PostForm.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "openid email https://www.googleapis.com/auth/spreadsheets",
		})
	}
}

func newController(t *testing.T, tokenURL string, resolver oauthflow.IdentityResolver, timeout time.Duration) *oauthflow.Controller {
	t.Helper()
	cfg := &oauth2.Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURL:  "http://localhost:8000/oauth2callback",
		Scopes:       []string{"openid", "email", "https://www.googleapis.com/auth/spreadsheets"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://provider.example/auth",
			TokenURL: tokenURL,
		},
	}
	c, err := oauthflow.NewController(cfg, resolver, timeout)
	require.NoError(t, err)
	return c
}

func staticIdentity(email string) oauthflow.IdentityResolver {
	return oauthflow.IdentityResolverFunc(func(context.Context, *oauth2.Token) (string, error) {
		return email, nil
	})
}

func callback(query url.Values) *url.URL {
	return &url.URL{Path: "/oauth2callback", RawQuery: query.Encode()}
}

func TestBeginStoresStateAndRequestsOfflineAccess(t *testing.T) {
	c := newController(t, "https://provider.example/token", staticIdentity("alice@example.com"), time.Second)
	s := &sessions.Session{ID: "s1"}

	authURL, err := c.Begin(s)
	require.NoError(t, err)
	assert.Len(t, s.OAuthState, 43)
	assert.Equal(t, sessions.StateAwaitingCallback, s.State())

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "provider.example", u.Host)
	assert.Equal(t, s.OAuthState, q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "true", q.Get("include_granted_scopes"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email https://www.googleapis.com/auth/spreadsheets", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, s.PKCEVerifier)
	assert.NotEqual(t, s.PKCEVerifier, q.Get("code_challenge"), "only the challenge leaves the server")

	previous := s.OAuthState
	_, err = c.Begin(s)
	require.NoError(t, err)
	assert.NotEqual(t, previous, s.OAuthState, "every login gets a fresh state")
}

func TestCompleteSuccess(t *testing.T) {
	ts := newTokenServer(t, grantHandler(t))
	c := newController(t, ts.URL, staticIdentity("alice@example.com"), time.Second)
	s := &sessions.Session{ID: "s1", OAuthState: "state-1", PKCEVerifier: "verifier-1"}

	grant, err := c.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}, "code": {"code-1"}}))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", grant.Identity)
	assert.Equal(t, "access-1", grant.Credential.AccessToken)
	assert.Equal(t, "refresh-1", grant.Credential.RefreshToken)
	assert.Equal(t, ts.URL, grant.Credential.TokenEndpoint)
	assert.Equal(t, "client-1", grant.Credential.ClientID)
	assert.Equal(t, []string{"openid", "email", "https://www.googleapis.com/auth/spreadsheets"}, grant.Credential.Scopes)
	assert.Empty(t, s.OAuthState)
	assert.Empty(t, s.PKCEVerifier)
	assert.Equal(t, int32(1), ts.hits.Load())
}

func TestCompleteStateMismatchMakesNoNetworkCall(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		query    url.Values
	}{
		{"different state", "state-1", url.Values{"state": {"state-2"}, "code": {"code-1"}}},
		{"missing state", "state-1", url.Values{"code": {"code-1"}}},
		{"no login in progress", "", url.Values{"state": {"state-1"}, "code": {"code-1"}}},
		{"mismatch with provider error", "state-1", url.Values{"state": {"x"}, "error": {"access_denied"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, grantHandler(t))
			resolved := false
			c := newController(t, ts.URL, oauthflow.IdentityResolverFunc(func(context.Context, *oauth2.Token) (string, error) {
				resolved = true
				return "alice@example.com", nil
			}), time.Second)

			s := &sessions.Session{ID: "s1", OAuthState: tt.expected}
			before := *s
			_, err := c.Complete(context.Background(), s, callback(tt.query))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrStateMismatch)
			assert.Equal(t, before, *s, "session must not change")
			assert.Equal(t, int32(0), ts.hits.Load())
			assert.False(t, resolved)
		})
	}
}

func TestCompleteProviderErrorAndMissingCode(t *testing.T) {
	ts := newTokenServer(t, grantHandler(t))
	c := newController(t, ts.URL, staticIdentity("alice@example.com"), time.Second)

	s := &sessions.Session{ID: "s1", OAuthState: "state-1"}
	_, err := c.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}, "error": {"access_denied"}}))
	assert.ErrorIs(t, err, apperrors.ErrTokenExchange)
	assert.Contains(t, err.Error(), "access_denied")

	s = &sessions.Session{ID: "s1", OAuthState: "state-1"}
	_, err = c.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}}))
	assert.ErrorIs(t, err, apperrors.ErrTokenExchange)
	assert.Equal(t, int32(0), ts.hits.Load())
}

func TestCompleteExchangeRejected(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	c := newController(t, ts.URL, staticIdentity("alice@example.com"), time.Second)

	s := &sessions.Session{ID: "s1", OAuthState: "state-1"}
	_, err := c.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}, "code": {"code-1"}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenExchange)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestCompleteExchangeProviderOutageIsRetryable(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := newController(t, ts.URL, staticIdentity("alice@example.com"), time.Second)

	s := &sessions.Session{ID: "s1", OAuthState: "state-1"}
	_, err := c.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}, "code": {"code-1"}}))
	assert.ErrorIs(t, err, apperrors.ErrTokenExchange)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestCompleteExchangeTimeout(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c := newController(t, ts.URL, staticIdentity("alice@example.com"), 50*time.Millisecond)

	s := &sessions.Session{ID: "s1", OAuthState: "state-1"}
	_, err := c.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}, "code": {"code-1"}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenExchange)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestCompleteIdentityLookupFailure(t *testing.T) {
	ts := newTokenServer(t, grantHandler(t))
	c := newController(t, ts.URL, oauthflow.IdentityResolverFunc(func(context.Context, *oauth2.Token) (string, error) {
		return "", errors.New("userinfo unavailable")
	}), time.Second)

	s := &sessions.Session{ID: "s1", OAuthState: "state-1", PKCEVerifier: "verifier-1"}
	_, err := c.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}, "code": {"code-1"}}))
	assert.ErrorIs(t, err, apperrors.ErrIdentityLookup)

	empty := newController(t, ts.URL, staticIdentity(""), time.Second)
	s = &sessions.Session{ID: "s1", OAuthState: "state-1", PKCEVerifier: "verifier-1"}
	_, err = empty.Complete(context.Background(), s, callback(url.Values{"state": {"state-1"}, "code": {"code-1"}}))
	assert.ErrorIs(t, err, apperrors.ErrIdentityLookup)
}
