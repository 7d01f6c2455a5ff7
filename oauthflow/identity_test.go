package oauthflow_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/ingredient-sheets/oauthflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testClientID = "client-1"
	testKeyID    = "key-1"
)

type fakeOIDCProvider struct {
	*httptest.Server
	key      *rsa.PrivateKey
	userinfo map[string]any
}

func newFakeOIDCProvider(t *testing.T) *fakeOIDCProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeOIDCProvider{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, map[string]any{
			"issuer":                                p.URL,
			"authorization_endpoint":                p.URL + "/auth",
			"token_endpoint":                        p.URL + "/token",
			"jwks_uri":                              p.URL + "/jwks",
			"userinfo_endpoint":                     p.URL + "/userinfo",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"kid": testKeyID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSONResponse(w, p.userinfo)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeOIDCProvider) idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	base := jwt.MapClaims{
		"iss": p.URL,
		"aud": testClientID,
		"sub": "1234",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, base)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(p.key)
	require.NoError(t, err)
	return signed
}

func (p *fakeOIDCProvider) resolver(t *testing.T) *oauthflow.OIDCIdentity {
	t.Helper()
	provider, err := oidc.NewProvider(context.Background(), p.URL)
	require.NoError(t, err)
	return oauthflow.NewOIDCIdentity(provider, testClientID, p.Client())
}

func writeJSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func tokenWithIDToken(idToken string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: "access-1", TokenType: "Bearer"}
	if idToken == "" {
		return tok
	}
	return tok.WithExtra(map[string]any{"id_token": idToken})
}

func TestOIDCIdentityFromIDToken(t *testing.T) {
	p := newFakeOIDCProvider(t)
	raw := p.idToken(t, jwt.MapClaims{"email": "alice@example.com", "email_verified": true})

	email, err := p.resolver(t).Resolve(context.Background(), tokenWithIDToken(raw))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestOIDCIdentityRejectsBadIDToken(t *testing.T) {
	p := newFakeOIDCProvider(t)

	wrongAudience := p.idToken(t, jwt.MapClaims{"aud": "someone-else", "email": "alice@example.com"})
	_, err := p.resolver(t).Resolve(context.Background(), tokenWithIDToken(wrongAudience))
	assert.Error(t, err)

	unverified := p.idToken(t, jwt.MapClaims{"email": "alice@example.com", "email_verified": false})
	_, err = p.resolver(t).Resolve(context.Background(), tokenWithIDToken(unverified))
	assert.Error(t, err)
}

func TestOIDCIdentityFallsBackToUserinfo(t *testing.T) {
	p := newFakeOIDCProvider(t)
	p.userinfo = map[string]any{"sub": "1234", "email": "alice@example.com", "email_verified": true}

	email, err := p.resolver(t).Resolve(context.Background(), tokenWithIDToken(""))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	// An id_token without an email also falls back
	raw := p.idToken(t, nil)
	email, err = p.resolver(t).Resolve(context.Background(), tokenWithIDToken(raw))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestOIDCIdentityUserinfoWithoutEmail(t *testing.T) {
	p := newFakeOIDCProvider(t)
	p.userinfo = map[string]any{"sub": "1234"}

	_, err := p.resolver(t).Resolve(context.Background(), tokenWithIDToken(""))
	assert.Error(t, err)
}
