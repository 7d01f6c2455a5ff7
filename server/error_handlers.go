package server

import (
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
	"github.com/rs/zerolog"
)

// ErrorPageData is rendered by error.html.
type ErrorPageData struct {
	AppName    string
	Identity   string
	Title      string
	Message    string
	RetryURL   string
	RetryLabel string
	RequestID  string
}

type errorView struct {
	status     int
	title      string
	message    string
	retryURL   string
	retryLabel string
}

// viewForError maps an error kind to what the user sees. Every failure gets
// a way to retry; none of them surfaces internal details.
func viewForError(err error) errorView {
	signInAgain := func(status int, title, message string) errorView {
		return errorView{status: status, title: title, message: message, retryURL: RouteLogin, retryLabel: "Sign in again"}
	}
	retryable := apperrors.IsRetryable(err)

	switch {
	case errors.Is(err, apperrors.ErrStateMismatch):
		return signInAgain(http.StatusBadRequest, "Sign-in could not be verified",
			"This sign-in attempt did not match the one we started. Please sign in again.")
	case errors.Is(err, apperrors.ErrTokenExchange), errors.Is(err, apperrors.ErrIdentityLookup):
		status := http.StatusBadGateway
		if retryable {
			status = http.StatusServiceUnavailable
		}
		return signInAgain(status, "Sign-in failed",
			"We could not complete sign-in with your account provider. Please try again.")
	case errors.Is(err, apperrors.ErrProvisioning):
		return signInAgain(http.StatusServiceUnavailable, "Spreadsheet setup failed",
			"We could not set up your ingredient spreadsheet. Nothing was saved; please try again.")
	case errors.Is(err, apperrors.ErrInvalidInput):
		return errorView{status: http.StatusBadRequest, title: "Please check your input",
			message: userMessage(err), retryURL: RouteIndex, retryLabel: "Back to ingredients"}
	case errors.Is(err, apperrors.ErrRemoteAPI):
		status := http.StatusBadGateway
		if retryable {
			status = http.StatusServiceUnavailable
		}
		return errorView{status: status, title: "Spreadsheet unavailable",
			message: "The spreadsheet service did not complete the request. Please try again.", retryURL: RouteIndex, retryLabel: "Try again"}
	default:
		return errorView{status: http.StatusInternalServerError, title: "Something went wrong",
			message: "An unexpected error occurred. Please try again.", retryURL: RouteIndex, retryLabel: "Try again"}
	}
}

// userMessage strips the kind prefix from validation errors, which are
// written for users.
func userMessage(err error) string {
	msg := err.Error()
	return strings.TrimPrefix(msg, apperrors.ErrInvalidInput.Error()+": ")
}

// renderError is the route boundary for every failure.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	view := viewForError(err)

	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if view.status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Int("status", view.status).Msg("Request failed")

	renderPage(w, r, s.errorTmpl, view.status, ErrorPageData{
		AppName:    s.appName,
		Title:      view.title,
		Message:    view.message,
		RetryURL:   view.retryURL,
		RetryLabel: view.retryLabel,
		RequestID:  w.Header().Get(headerRequestID),
	})
}
