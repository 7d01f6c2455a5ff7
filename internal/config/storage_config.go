package config

import "time"

const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"

	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type StorageConfig interface {
	GetStoreBackend() string
	GetSessionBackend() string
	GetRedisURL() string
	GetSheetTitle() string
	GetProvisioningLease() time.Duration
}

type Storage struct {
	StoreBackend      string        `env:"STORE_BACKEND" envDefault:"file"`
	SessionBackend    string        `env:"SESSION_BACKEND" envDefault:"memory"`
	RedisURL          string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SheetTitle        string        `env:"SHEET_TITLE" envDefault:"Ingredient Nutrition"`
	ProvisioningLease time.Duration `env:"PROVISIONING_LEASE" envDefault:"2m"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStoreBackend() string {
	return s.StoreBackend
}

func (s Storage) GetSessionBackend() string {
	return s.SessionBackend
}

func (s Storage) GetRedisURL() string {
	return s.RedisURL
}

func (s Storage) GetSheetTitle() string {
	return s.SheetTitle
}

func (s Storage) GetProvisioningLease() time.Duration {
	return s.ProvisioningLease
}
