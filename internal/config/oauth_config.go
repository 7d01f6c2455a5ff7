package config

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type OAuthConfig interface {
	GetOAuth2Config() (*oauth2.Config, error)
	GetIssuer() string
	GetScopes() []string
	GetRedirectURL() string
	GetProviderTimeout() time.Duration
}

type OAuth struct {
	ClientID          string        `env:"GOOGLE_CLIENT_ID"`
	ClientSecret      string        `env:"GOOGLE_CLIENT_SECRET"`
	ClientSecretsFile string        `env:"GOOGLE_CLIENT_SECRETS_FILE" envDefault:"credentials.json"`
	RedirectURL       string        `env:"OAUTH_REDIRECT_URL"`
	Scopes            []string      `env:"OAUTH_SCOPES" envSeparator:"," envDefault:"openid,email,https://www.googleapis.com/auth/spreadsheets"`
	Issuer            string        `env:"OAUTH_ISSUER" envDefault:"https://accounts.google.com"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

var _ OAuthConfig = OAuth{}

// GetOAuth2Config returns the client configuration for the identity provider.
// Explicit client id/secret win over the client secrets file.
func (o OAuth) GetOAuth2Config() (*oauth2.Config, error) {
	if o.ClientID != "" && o.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  o.RedirectURL,
			Scopes:       o.GetScopes(),
		}, nil
	}

	data, err := os.ReadFile(o.ClientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("[OAuth GetOAuth2Config] no client id/secret and unable to read %s: %w", o.ClientSecretsFile, err)
	}
	cfg, err := google.ConfigFromJSON(data, o.GetScopes()...)
	if err != nil {
		return nil, fmt.Errorf("[OAuth GetOAuth2Config] parse %s: %w", o.ClientSecretsFile, err)
	}
	cfg.RedirectURL = o.RedirectURL
	return cfg, nil
}

func (o OAuth) GetIssuer() string {
	return o.Issuer
}

func (o OAuth) GetScopes() []string {
	scopes := make([]string, 0, len(o.Scopes))
	for _, s := range o.Scopes {
		if s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func (o OAuth) GetRedirectURL() string {
	return o.RedirectURL
}

func (o OAuth) GetProviderTimeout() time.Duration {
	if o.ProviderTimeout <= 0 {
		return 10 * time.Second
	}
	return o.ProviderTimeout
}

func (o OAuth) hasClientMaterial() bool {
	if o.ClientID != "" && o.ClientSecret != "" {
		return true
	}
	_, err := os.Stat(o.ClientSecretsFile)
	return err == nil
}
