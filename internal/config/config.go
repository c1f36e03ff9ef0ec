package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "CLASSPAD"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "classpad.db"
	defaultLogLevel     = "info"
	defaultCookieName   = "classpad_session"
	defaultIssuer       = "classpad-auth"
)

// AppConfig captures runtime configuration for the collaboration API server.
type AppConfig struct {
	HTTPAddress          string
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	DatabasePath         string
	LogLevel             string
	RealtimeAPIKey       string
	RealtimeAuthDomain   string
	RealtimeDatabaseURL  string
}

// RealtimeConfig is the client-side configuration for the external
// realtime document backend, passed through to pad detail responses.
type RealtimeConfig struct {
	APIKey      string `json:"api_key"`
	AuthDomain  string `json:"auth_domain"`
	DatabaseURL string `json:"database_url"`
}

// Realtime bundles the realtime passthrough fields.
func (c AppConfig) Realtime() RealtimeConfig {
	return RealtimeConfig{
		APIKey:      c.RealtimeAPIKey,
		AuthDomain:  c.RealtimeAuthDomain,
		DatabaseURL: c.RealtimeDatabaseURL,
	}
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultIssuer)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		RealtimeAPIKey:       configViper.GetString("realtime.api_key"),
		RealtimeAuthDomain:   configViper.GetString("realtime.auth_domain"),
		RealtimeDatabaseURL:  configViper.GetString("realtime.database_url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
