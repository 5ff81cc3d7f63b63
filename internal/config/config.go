package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the server needs from the environment.
// A .env file is honored in development; real deployments set the
// variables directly (Docker/compose).
type Config struct {
	Addr         string `envconfig:"ADDR" default:":8080"`
	DatabaseDSN  string `envconfig:"DB_DSN" required:"true"`
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	EventChannel string `envconfig:"EVENT_CHANNEL" default:"chat:events"`
}

// Load reads configuration from the environment. An empty RedisAddr
// means single-instance mode: events stay on the in-process bus.
func Load() (*Config, error) {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
