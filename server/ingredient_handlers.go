package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/ingredient-sheets/ingredients"
	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/jrsteele09/ingredient-sheets/sessions"
	"github.com/rs/zerolog"
)

// IndexPageData is rendered by index.html.
type IndexPageData struct {
	AppName   string
	Identity  string
	Header    []string
	Rows      [][]string
	Onboarded bool
}

// IndexHandler lists the user's ingredients (GET /).
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, ok := s.authenticatedSession(w, r)
		if !ok {
			return
		}
		book, ok := s.bookFor(w, r, sess)
		if !ok {
			return
		}

		table, err := book.List(ctx)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		onboarded, err := s.sessions.PopOnce(ctx, sess, sessions.FlagOnboardingDone)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to persist read-once flag")
		}

		renderPage(w, r, s.indexTmpl, http.StatusOK, IndexPageData{
			AppName:   s.appName,
			Identity:  sess.Identity,
			Header:    table.Header,
			Rows:      table.Rows,
			Onboarded: onboarded,
		})
	}
}

// AddIngredientHandler appends a row from the submitted form (POST /add).
func (s *Server) AddIngredientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.authenticatedSession(w, r)
		if !ok {
			return
		}

		if err := r.ParseForm(); err != nil {
			s.renderError(w, r, fmt.Errorf("%w: invalid form data", apperrors.ErrInvalidInput))
			return
		}
		in, err := ingredients.FromForm(r.PostForm)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		book, ok := s.bookFor(w, r, sess)
		if !ok {
			return
		}
		if err := book.Add(r.Context(), in); err != nil {
			s.renderError(w, r, err)
			return
		}
		http.Redirect(w, r, RouteIndex, http.StatusSeeOther)
	}
}

// authenticatedSession returns the caller's session, or redirects to the
// login route when the session is not fully signed in.
func (s *Server) authenticatedSession(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	sess, err := s.sessions.Get(r)
	if err != nil {
		s.renderError(w, r, err)
		return nil, false
	}
	if sess.State() != sessions.StateAuthenticated {
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
		return nil, false
	}
	return sess, true
}

// bookFor opens the user's spreadsheet with their stored credential. A
// missing credential sends the user back through login.
func (s *Server) bookFor(w http.ResponseWriter, r *http.Request, sess *sessions.Session) (*ingredients.Book, bool) {
	ctx := r.Context()
	cred, found, err := s.creds.Load(ctx, sess.Identity)
	if err != nil {
		s.renderError(w, r, err)
		return nil, false
	}
	if !found {
		zerolog.Ctx(ctx).Warn().Str("identity", sess.Identity).Msg("No stored credential; restarting login")
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
		return nil, false
	}

	api, err := s.sheets.ForCredential(ctx, sess.Identity, cred)
	if err != nil {
		s.renderError(w, r, apperrors.Kind(apperrors.ErrRemoteAPI, err))
		return nil, false
	}
	return ingredients.NewBook(api, sess.ResourceID), true
}
