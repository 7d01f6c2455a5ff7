package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/ingredient-sheets/internal/errors"
)

// DefaultCookieName is the cookie carrying the signed session id.
const DefaultCookieName = "session"

// Manager resolves, persists and clears sessions. The browser only ever sees
// an HS256-signed token naming the session id; all state stays in the Repo.
type Manager struct {
	repo       Repo
	secret     []byte
	maxAge     time.Duration
	cookieName string
	secure     bool
	nowTime    func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithSecureCookies sets the Secure attribute on issued cookies.
func WithSecureCookies(secure bool) ManagerOption {
	return func(m *Manager) {
		m.secure = secure
	}
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) {
		m.cookieName = name
	}
}

func NewManager(repo Repo, secret string, maxAge time.Duration, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[sessions NewManager] repo is required")
	}
	if secret == "" {
		return nil, errors.New("[sessions NewManager] signing secret is required")
	}
	if maxAge <= 0 {
		return nil, errors.New("[sessions NewManager] max age must be positive")
	}

	m := &Manager{
		repo:       repo,
		secret:     []byte(secret),
		maxAge:     maxAge,
		cookieName: DefaultCookieName,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Get resolves the caller's session. A missing, forged, unknown or expired
// cookie yields a fresh anonymous session that is not stored until Save.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return m.newSession()
	}

	sessionID, err := m.parseCookie(cookie.Value)
	if err != nil {
		return m.newSession()
	}

	s, err := m.repo.Get(r.Context(), sessionID)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrSessionExpired):
		return m.newSession()
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}

	if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(m.nowTime()) {
		_ = m.repo.Delete(r.Context(), s.ID)
		return m.newSession()
	}
	return &s, nil
}

// Save persists s, extends its lifetime and (re)issues the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	now := m.nowTime()
	s.ExpiresAt = now.Add(m.maxAge)
	if err := m.repo.Upsert(ctx, *s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	value, err := m.signCookie(s.ID, now)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.maxAge.Seconds()),
	})
	return nil
}

// PopOnce reads and clears a transient flag, persisting the change at once
// so later requests see the default even if the caller never calls Save.
func (m *Manager) PopOnce(ctx context.Context, s *Session, flag string) (bool, error) {
	if !s.PopFlag(flag) {
		return false, nil
	}
	if err := m.repo.Upsert(ctx, *s); err != nil {
		return true, fmt.Errorf("save session: %w", err)
	}
	return true, nil
}

// Rotate moves s to a new id and drops the server state held under the old
// one. Call it when the session's privilege changes, then Save.
func (m *Manager) Rotate(ctx context.Context, s *Session) error {
	id, err := GenerateID()
	if err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	s.ID = id
	return nil
}

// Clear destroys the server-side session and expires the cookie. s is reset
// to an anonymous session with a new id.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, s *Session) error {
	err := m.repo.Delete(ctx, s.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	fresh, genErr := m.newSession()
	if genErr != nil {
		return genErr
	}
	*s = *fresh
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) newSession() (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	now := m.nowTime()
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(m.maxAge),
	}, nil
}

func (m *Manager) signCookie(sessionID string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

func (m *Manager) parseCookie(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowTime),
	)
	if err != nil {
		return "", fmt.Errorf("parse session cookie: %w", err)
	}
	if claims.ID == "" {
		return "", errors.New("session cookie has no id")
	}
	return claims.ID, nil
}

// GenerateID generates a cryptographically secure session ID.
// 32 bytes = 256 bits of entropy.
func GenerateID() (string, error) {
	const size = 32

	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
