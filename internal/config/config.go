// Package config loads the gateway configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all gateway configuration.
type Config struct {
	// ETIM API
	ClientID        string `env:"ETIM_CLIENT_ID,required"`
	ClientSecret    string `env:"ETIM_CLIENT_SECRET,required"`
	AuthURL         string `env:"ETIM_AUTH_URL" envDefault:"https://etimauth.etim-international.com"`
	APIURL          string `env:"ETIM_API_URL" envDefault:"https://etimapi.etim-international.com"`
	DefaultLanguage string `env:"ETIM_DEFAULT_LANGUAGE" envDefault:"EN"`
	Scope           string `env:"ETIM_SCOPE" envDefault:"EtimApi"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"redis"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Cache TTL tiers
	SearchTTL time.Duration `env:"CACHE_SEARCH_TTL" envDefault:"1h"`
	DetailTTL time.Duration `env:"CACHE_DETAIL_TTL" envDefault:"24h"`
	StaticTTL time.Duration `env:"CACHE_STATIC_TTL" envDefault:"168h"`

	// Response governor
	MaxCollectionBytes int `env:"GOVERNOR_MAX_COLLECTION_BYTES" envDefault:"65536"`

	// Server
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// RedisAddr returns the host:port address for the Redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
