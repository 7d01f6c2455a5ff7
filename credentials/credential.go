package credentials

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the token material that authorizes spreadsheet calls on a
// user's behalf. It carries its own client and endpoint so a refresh does not
// depend on process configuration.
type Credential struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	TokenType     string    `json:"token_type,omitempty"`
	Expiry        time.Time `json:"expiry,omitempty"`
	TokenEndpoint string    `json:"token_endpoint"`
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"client_secret"`
	Scopes        []string  `json:"granted_scopes,omitempty"`
}

// FromToken builds a Credential from a token grant. Granted scopes come from
// the token response when the provider reports them, else the requested set.
func FromToken(tok *oauth2.Token, cfg *oauth2.Config) *Credential {
	scopes := cfg.Scopes
	if granted, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(granted) != "" {
		scopes = strings.Fields(granted)
	}
	return &Credential{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		TokenType:     tok.TokenType,
		Expiry:        tok.Expiry,
		TokenEndpoint: cfg.Endpoint.TokenURL,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		Scopes:        append([]string(nil), scopes...),
	}
}

// Token returns the oauth2 view of the credential.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// Config returns an oauth2 config able to refresh this credential.
func (c *Credential) Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenEndpoint},
		Scopes:       append([]string(nil), c.Scopes...),
	}
}

// WithToken returns a copy updated from a refreshed token. Providers often
// omit the refresh token on refresh, so an empty one keeps the old value.
func (c *Credential) WithToken(tok *oauth2.Token) *Credential {
	next := *c
	next.Scopes = append([]string(nil), c.Scopes...)
	next.AccessToken = tok.AccessToken
	next.Expiry = tok.Expiry
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	return &next
}
