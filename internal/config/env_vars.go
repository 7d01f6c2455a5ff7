package config

import "strings"

const devEnv = "DEV"

type EnvVars struct {
	Port       string `env:"PORT" envDefault:"8000"`
	AppName    string `env:"APP_NAME" envDefault:"Ingredient Sheets"`
	Env        string `env:"ENV" envDefault:"DEV"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8000"`
	DataFolder string `env:"FOLDER" envDefault:"./data"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port != "" && port[0] != ':' {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return devEnv
	}
	return e.Env
}

func (e EnvVars) IsDev() bool {
	return strings.EqualFold(e.GetEnv(), devEnv)
}

// GetBaseURL returns the externally visible base URL (e.g., "https://sheets.example.com")
// This is used to derive the default OAuth redirect URI
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}
