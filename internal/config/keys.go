package config

import (
	"time"

	"github.com/spf13/viper"
)

// Configuration keys shared by flags, environment (GITDM_*) and .gitdm.yaml.
const (
	KeyAddr              = "addr"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyLogNoColor        = "log.no_color"
	KeyCredentialBackend = "credentials.backend"
	KeyCredentialPath    = "credentials.path"
	KeyCredentialRedis   = "credentials.redis.url"
	KeyHTTPTimeout       = "http.timeout"
	KeyRefreshTimeout    = "refresh.timeout"
)

const (
	DefaultAddr           = "http://localhost:8000/api"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
)

// Credential backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Client holds the resolved settings of the CLI.
type Client struct {
	Addr              string
	CredentialBackend string
	CredentialPath    string
	RedisURL          string
	HTTPTimeout       time.Duration
	RefreshTimeout    time.Duration
}

// SetDefaults registers defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddr, DefaultAddr)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyCredentialBackend, BackendFile)
	v.SetDefault(KeyHTTPTimeout, DefaultHTTPTimeout)
	v.SetDefault(KeyRefreshTimeout, DefaultRefreshTimeout)
}

// ClientFrom reads the CLI settings from v.
func ClientFrom(v *viper.Viper) Client {
	return Client{
		Addr:              v.GetString(KeyAddr),
		CredentialBackend: v.GetString(KeyCredentialBackend),
		CredentialPath:    v.GetString(KeyCredentialPath),
		RedisURL:          v.GetString(KeyCredentialRedis),
		HTTPTimeout:       v.GetDuration(KeyHTTPTimeout),
		RefreshTimeout:    v.GetDuration(KeyRefreshTimeout),
	}
}
