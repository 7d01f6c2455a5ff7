// Package oauthflow runs the authorization code flow against the identity
// provider: it builds the consent redirect and completes the callback.
package oauthflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/ingredient-sheets/credentials"
	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/sessions"
	"golang.org/x/oauth2"
)

const stateSize = 32

// Grant is the outcome of a completed flow.
type Grant struct {
	Identity   string
	Credential *credentials.Credential
}

// Controller starts and completes authorization code flows.
type Controller struct {
	config     *oauth2.Config
	identity   IdentityResolver
	httpClient *http.Client
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithHTTPClient replaces the client used for the token exchange.
func WithHTTPClient(client *http.Client) ControllerOption {
	return func(c *Controller) {
		c.httpClient = client
	}
}

// NewController builds a Controller. Every provider call is bounded by timeout.
func NewController(config *oauth2.Config, identity IdentityResolver, timeout time.Duration, options ...ControllerOption) (*Controller, error) {
	if config == nil {
		return nil, errors.New("[oauthflow NewController] oauth2 config is required")
	}
	if identity == nil {
		return nil, errors.New("[oauthflow NewController] identity resolver is required")
	}

	c := &Controller{
		config:     config,
		identity:   identity,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Begin stores a fresh anti-forgery state and PKCE verifier on s and returns
// the provider consent URL. Offline access is requested so a refresh token is
// issued.
func (c *Controller) Begin(s *sessions.Session) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	s.OAuthState = state
	s.PKCEVerifier = oauth2.GenerateVerifier()

	return c.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.S256ChallengeOption(s.PKCEVerifier),
	), nil
}

// Complete validates the callback and exchanges its code for a credential.
// A state mismatch is rejected before any network call and leaves s untouched.
func (c *Controller) Complete(ctx context.Context, s *sessions.Session, callback *url.URL) (*Grant, error) {
	query := callback.Query()

	if !statesEqual(s.OAuthState, query.Get("state")) {
		return nil, apperrors.ErrStateMismatch
	}
	// The state and verifier are single use from here on.
	verifier := s.PKCEVerifier
	s.OAuthState = ""
	s.PKCEVerifier = ""

	if providerErr := query.Get("error"); providerErr != "" {
		if desc := query.Get("error_description"); desc != "" {
			providerErr += ": " + desc
		}
		return nil, fmt.Errorf("%w: provider returned %s", apperrors.ErrTokenExchange, providerErr)
	}

	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", apperrors.ErrTokenExchange)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, apperrors.Kind(apperrors.ErrTokenExchange, classifyExchange(err))
	}

	identity, err := c.identity.Resolve(ctx, tok)
	if err != nil {
		return nil, apperrors.Kind(apperrors.ErrIdentityLookup, err)
	}
	if identity == "" {
		return nil, fmt.Errorf("%w: provider returned no email", apperrors.ErrIdentityLookup)
	}

	return &Grant{
		Identity:   identity,
		Credential: credentials.FromToken(tok, c.config),
	}, nil
}

// classifyExchange marks provider-side failures as retryable. Rejected codes
// are not: the user must restart the login.
func classifyExchange(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
		return apperrors.Retryable(err)
	}
	return err
}

func statesEqual(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// GenerateState returns a random URL-safe anti-forgery value.
func GenerateState() (string, error) {
	b := make([]byte, stateSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
