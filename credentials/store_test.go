package credentials_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/ingredient-sheets/credentials"
	"github.com/jrsteele09/ingredient-sheets/kvstore/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testIdentity = "alice@example.com"

func testCredential(tokenURL string) *credentials.Credential {
	return &credentials.Credential{
		AccessToken:   "access-1",
		RefreshToken:  "refresh-1",
		TokenType:     "Bearer",
		Expiry:        time.Now().Add(time.Hour).UTC().Round(time.Second),
		TokenEndpoint: tokenURL,
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		Scopes:        []string{"email", "https://www.googleapis.com/auth/spreadsheets"},
	}
}

func TestNewStoreValidation(t *testing.T) {
	_, err := credentials.NewStore(nil, "secret")
	require.Error(t, err)
	_, err = credentials.NewStore(repofake.NewFakeStore(), "")
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := repofake.NewFakeStore()
	store, err := credentials.NewStore(kv, "secret")
	require.NoError(t, err)

	cred := testCredential("https://oauth2.example.com/token")
	require.NoError(t, store.Save(ctx, testIdentity, cred))

	loaded, found, err := store.Load(ctx, testIdentity)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cred.AccessToken, loaded.AccessToken)
	assert.Equal(t, cred.RefreshToken, loaded.RefreshToken)
	assert.True(t, cred.Expiry.Equal(loaded.Expiry))
	assert.Equal(t, cred.Scopes, loaded.Scopes)
	assert.Equal(t, cred.ClientSecret, loaded.ClientSecret)
}

func TestLoadMissingIsNotAnError(t *testing.T) {
	store, err := credentials.NewStore(repofake.NewFakeStore(), "secret")
	require.NoError(t, err)

	cred, found, err := store.Load(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, cred)
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := credentials.NewStore(repofake.NewFakeStore(), "secret")
	require.NoError(t, err)

	first := testCredential("https://oauth2.example.com/token")
	second := testCredential("https://oauth2.example.com/token")
	second.AccessToken = "access-2"
	require.NoError(t, store.Save(ctx, testIdentity, first))
	require.NoError(t, store.Save(ctx, testIdentity, second))

	loaded, _, err := store.Load(ctx, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, "access-2", loaded.AccessToken)
}

func TestCredentialsAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	kv := repofake.NewFakeStore()
	store, err := credentials.NewStore(kv, "secret")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testIdentity, testCredential("https://oauth2.example.com/token")))

	raw, found, err := kv.Get(ctx, "credential:"+testIdentity)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, string(raw), "refresh-1")
	assert.NotContains(t, string(raw), "client-secret")

	other, err := credentials.NewStore(kv, "another-secret")
	require.NoError(t, err)
	_, _, err = other.Load(ctx, testIdentity)
	require.Error(t, err, "a different key must not decrypt")
}

func TestSealedValueIsBoundToIdentity(t *testing.T) {
	ctx := context.Background()
	kv := repofake.NewFakeStore()
	store, err := credentials.NewStore(kv, "secret")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testIdentity, testCredential("https://oauth2.example.com/token")))

	raw, _, err := kv.Get(ctx, "credential:"+testIdentity)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "credential:mallory@example.com", raw))

	_, _, err = store.Load(ctx, "mallory@example.com")
	require.Error(t, err)
}

func TestFromTokenUsesGrantedScopes(t *testing.T) {
	cfg := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: "https://oauth2.example.com/token"},
		Scopes:       []string{"requested"},
	}
	tok := (&oauth2.Token{AccessToken: "a", RefreshToken: "r"}).WithExtra(map[string]interface{}{
		"scope": "email https://www.googleapis.com/auth/spreadsheets",
	})

	cred := credentials.FromToken(tok, cfg)
	assert.Equal(t, []string{"email", "https://www.googleapis.com/auth/spreadsheets"}, cred.Scopes)
	assert.Equal(t, "https://oauth2.example.com/token", cred.TokenEndpoint)

	plain := credentials.FromToken(&oauth2.Token{AccessToken: "a"}, cfg)
	assert.Equal(t, []string{"requested"}, plain.Scopes)
}

func TestTokenSourceRefreshesAndPersists(t *testing.T) {
	var refreshes atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	ctx := context.Background()
	store, err := credentials.NewStore(repofake.NewFakeStore(), "secret")
	require.NoError(t, err)

	cred := testCredential(tokenServer.URL)
	cred.Expiry = time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, testIdentity, cred))

	ts := store.TokenSource(ctx, testIdentity, cred)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)

	// Second call reuses the fresh token.
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, int32(1), refreshes.Load())

	saved, found, err := store.Load(ctx, testIdentity)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "access-2", saved.AccessToken)
	assert.Equal(t, "refresh-1", saved.RefreshToken, "refresh token is kept when the provider omits it")
}

func TestTokenSourceRefreshFailure(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenServer.Close()

	store, err := credentials.NewStore(repofake.NewFakeStore(), "secret")
	require.NoError(t, err)

	cred := testCredential(tokenServer.URL)
	cred.Expiry = time.Now().Add(-time.Minute)
	_, err = store.TokenSource(context.Background(), testIdentity, cred).Token()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "refresh credential"))
}
