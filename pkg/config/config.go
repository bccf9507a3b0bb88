package config

import (
	"errors"
	"time"
)

type (
	Config struct {
		Gateway    Gateway
		Client     Client
		Auth       Auth
		Postgres   Postgres
		LiveKit    LiveKit
		Monitoring Monitoring
		Debug      bool
	}
	Gateway struct {
		Address      string `fig:"address" default:":8000"`
		Tls          Tls
		HistoryLimit int    `fig:"historyLimit" default:"20"`
		LockFile     string `fig:"lockFile"`
	}
	Tls struct {
		Enabled bool   `fig:"enabled"`
		Cert    string `fig:"cert"`
		Key     string `fig:"key"`
		Domain  string `fig:"domain"`
	}
	Client struct {
		GatewayAddress    string        `fig:"gatewayAddress" default:"localhost:8000"`
		Secure            bool          `fig:"secure"`
		ConnectTimeout    time.Duration `fig:"connectTimeout" default:"15s"`
		PublishTimeout    time.Duration `fig:"publishTimeout" default:"10s"`
		ReconnectGrace    time.Duration `fig:"reconnectGrace" default:"2s"`
		ReconnectAttempts int           `fig:"reconnectAttempts" default:"3"`
		ReconnectBase     time.Duration `fig:"reconnectBase" default:"1s"`
		ReconnectCap      time.Duration `fig:"reconnectCap" default:"5s"`
		DebounceWindow    time.Duration `fig:"debounceWindow" default:"300ms"`
		DedupCap          int           `fig:"dedupCap" default:"500"`
		DedupTTL          time.Duration `fig:"dedupTTL" default:"60s"`
	}
	Auth struct {
		Secret    string        `fig:"secret"`
		Issuer    string        `fig:"issuer" default:"liveclass"`
		Audience  string        `fig:"audience" default:"liveclass-meet"`
		ClockSkew time.Duration `fig:"clockSkew" default:"30s"`
	}
	Postgres struct {
		DSN string `fig:"dsn"`
	}
	LiveKit struct {
		URL              string        `fig:"url"`
		APIKey           string        `fig:"apiKey"`
		APISecret        string        `fig:"apiSecret"`
		TokenTTL         time.Duration `fig:"tokenTTL" default:"6h"`
		EmptyTimeout     time.Duration `fig:"emptyTimeout" default:"5m"`
		DepartureTimeout time.Duration `fig:"departureTimeout" default:"20s"`
	}
	Monitoring struct {
		Port             int    `fig:"port" default:"6601"`
		URLPrefix        string `fig:"urlPrefix"`
		MetricEnabled    bool   `fig:"metricEnabled"`
		ProfilingEnabled bool   `fig:"profilingEnabled"`
	}
)

func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.LiveKit.URL == "" || c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		return errors.New("livekit url/apiKey/apiSecret are required")
	}
	return nil
}
