package config

import "time"

const (
	devSessionSecret = "dev-session-secret-change-me"
	devCredentialKey = "dev-credential-key-change-me"
)

type SecurityConfig interface {
	GetSessionSecret() string
	GetCredentialKey() string
	GetMaxSessionAge() time.Duration
	GetCookieSecure() bool
}

type Security struct {
	SessionSecret string        `env:"SESSION_SECRET"`
	CredentialKey string        `env:"CREDENTIAL_KEY"`
	MaxSessionAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"false"`
}

var _ SecurityConfig = Security{}

func (s Security) GetSessionSecret() string {
	return s.SessionSecret
}

func (s Security) GetCredentialKey() string {
	return s.CredentialKey
}

func (s Security) GetMaxSessionAge() time.Duration {
	if s.MaxSessionAge <= 0 {
		return 24 * time.Hour
	}
	return s.MaxSessionAge
}

func (s Security) GetCookieSecure() bool {
	return s.CookieSecure
}
