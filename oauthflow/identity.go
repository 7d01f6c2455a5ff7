package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// IdentityResolver turns a fresh token grant into the user's email.
type IdentityResolver interface {
	Resolve(ctx context.Context, tok *oauth2.Token) (string, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(ctx context.Context, tok *oauth2.Token) (string, error)

func (f IdentityResolverFunc) Resolve(ctx context.Context, tok *oauth2.Token) (string, error) {
	return f(ctx, tok)
}

// OIDCIdentity reads the email from a verified id_token, falling back to the
// provider's userinfo endpoint when the grant carries none.
type OIDCIdentity struct {
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

func NewOIDCIdentity(provider *oidc.Provider, clientID string, httpClient *http.Client) *OIDCIdentity {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OIDCIdentity{
		provider:   provider,
		verifier:   provider.Verifier(&oidc.Config{ClientID: clientID}),
		httpClient: httpClient,
	}
}

func (o *OIDCIdentity) Resolve(ctx context.Context, tok *oauth2.Token) (string, error) {
	ctx = oidc.ClientContext(ctx, o.httpClient)

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := o.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return "", fmt.Errorf("verify id_token: %w", err)
		}

		var claims struct {
			Email         string `json:"email"`
			EmailVerified *bool  `json:"email_verified"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return "", fmt.Errorf("parse id_token claims: %w", err)
		}
		if claims.EmailVerified != nil && !*claims.EmailVerified {
			return "", errors.New("email address is not verified")
		}
		if claims.Email != "" {
			return claims.Email, nil
		}
	}

	info, err := o.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return "", fmt.Errorf("fetch userinfo: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("userinfo has no email")
	}
	if !info.EmailVerified {
		return "", errors.New("email address is not verified")
	}
	return info.Email, nil
}
