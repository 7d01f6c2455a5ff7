package server

import (
	"errors"
	"net/http"

	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/sessions"
	"github.com/rs/zerolog"
)

// LoginHandler starts the authorization code flow (GET /login).
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		authURL, err := s.flow.Begin(sess)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		if err := s.sessions.Save(r.Context(), w, sess); err != nil {
			s.renderError(w, r, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// OAuthCallbackHandler completes the flow, stores the credential, ensures the
// user's spreadsheet exists and signs the session in (GET /oauth2callback).
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := zerolog.Ctx(ctx)

		sess, err := s.sessions.Get(r)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		grant, err := s.flow.Complete(ctx, sess, r.URL)
		if err != nil {
			if !errors.Is(err, apperrors.ErrStateMismatch) {
				// The state was consumed; persist that so it cannot be replayed.
				if saveErr := s.sessions.Save(ctx, w, sess); saveErr != nil {
					logger.Warn().Err(saveErr).Msg("Failed to save session after failed callback")
				}
			}
			s.renderError(w, r, err)
			return
		}
		identity := grant.Identity
		cred := grant.Credential

		// Providers only return a refresh token on first consent.
		if cred.RefreshToken == "" {
			previous, found, err := s.creds.Load(ctx, identity)
			if err != nil {
				logger.Warn().Err(err).Str("identity", identity).Msg("Failed to load previous credential")
			} else if found {
				cred.RefreshToken = previous.RefreshToken
			}
		}
		if err := s.creds.Save(ctx, identity, cred); err != nil {
			s.renderError(w, r, err)
			return
		}

		result, err := s.provisioner.EnsureResource(ctx, identity, cred)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		// The pre-login cookie must not carry over into the signed-in session.
		if err := s.sessions.Rotate(ctx, sess); err != nil {
			s.renderError(w, r, err)
			return
		}
		sess.Authenticate(identity, result.ResourceID)
		if result.Created {
			sess.SetFlag(sessions.FlagOnboardingDone)
		}
		if err := s.sessions.Save(ctx, w, sess); err != nil {
			s.renderError(w, r, err)
			return
		}

		logger.Info().Str("identity", identity).Bool("created", result.Created).Msg("User signed in")
		http.Redirect(w, r, RouteIndex, http.StatusSeeOther)
	}
}

// LogoutHandler clears the session (GET /logout).
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		if err := s.sessions.Clear(r.Context(), w, sess); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to clear session")
		}
		http.Redirect(w, r, RouteIndex, http.StatusSeeOther)
	}
}
