package core

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Env is the runtime configuration read from the process environment.
type Env struct {
	// APIBaseURL is the REST API origin. In proxied mode sockets share it.
	APIBaseURL string `envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	// Proxied selects proxied mode.
	Proxied bool `envconfig:"WS_PROXIED" default:"false"`
	// DirectBaseURL is the host:port target used in direct mode.
	DirectBaseURL string `envconfig:"WS_BASE_URL" default:"http://localhost:8084"`
	// ForecastsURL overrides the forecast channel URL.
	ForecastsURL string `envconfig:"FORECASTS_WS_URL"`
	// NotificationsURL overrides the notification channel URL.
	NotificationsURL string `envconfig:"NOTIFICATIONS_WS_URL"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadEnv reads variables named PREFIX_API_BASE_URL, PREFIX_WS_PROXIED and so on.
func LoadEnv(prefix string) (*Env, error) {
	var env Env
	if err := envconfig.Process(prefix, &env); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return &env, nil
}

// Mode derives the operating mode from the environment.
func (e *Env) Mode() Mode {
	if e.Proxied {
		return ModeProxied
	}
	return ModeDirect
}

// Apply copies the environment into c. override is the channel specific URL, if any.
func (e *Env) Apply(c *Config, override string) *Config {
	c.Mode = e.Mode()
	if c.Mode == ModeProxied {
		c.ProxyBaseURL = e.APIBaseURL
	}
	if e.DirectBaseURL != "" {
		c.DirectBaseURL = e.DirectBaseURL
	}
	if override != "" {
		c.URL = override
	}
	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
	return c
}
