package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	OAuthConfig
	SecurityConfig
	StorageConfig
	GetStartupWarnings() []string
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	GetEnv() string
	IsDev() bool
}

type mainConfig struct {
	EnvVars
	OAuth
	Security
	Storage

	warnings []string
}

// New loads an optional .env file, then parses the environment.
// Outside DEV every secret must be supplied explicitly.
func New() (Config, error) {
	_ = godotenv.Load()

	c := &mainConfig{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("[config New] parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *mainConfig) GetStartupWarnings() []string {
	return c.warnings
}

func (c *mainConfig) validate() error {
	if c.RedirectURL == "" {
		c.RedirectURL = c.GetBaseURL() + "/oauth2callback"
	}

	if c.StoreBackend != StoreBackendFile && c.StoreBackend != StoreBackendSQLite {
		return fmt.Errorf("[config New] unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SessionBackend != SessionBackendMemory && c.SessionBackend != SessionBackendRedis {
		return fmt.Errorf("[config New] unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	if c.IsDev() {
		if c.SessionSecret == "" {
			c.SessionSecret = devSessionSecret
			c.warnings = append(c.warnings, "SESSION_SECRET not set, using development secret")
		}
		if c.CredentialKey == "" {
			c.CredentialKey = devCredentialKey
			c.warnings = append(c.warnings, "CREDENTIAL_KEY not set, using development key")
		}
		return nil
	}

	if c.SessionSecret == "" {
		return fmt.Errorf("[config New] SESSION_SECRET is required in %s", c.GetEnv())
	}
	if c.CredentialKey == "" {
		return fmt.Errorf("[config New] CREDENTIAL_KEY is required in %s", c.GetEnv())
	}
	if !c.hasClientMaterial() {
		return fmt.Errorf("[config New] GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET or %s is required in %s", c.ClientSecretsFile, c.GetEnv())
	}
	return nil
}
