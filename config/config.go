package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the process settings. Everything comes from the
// environment; a local .env file is loaded first when present.
type Config struct {
	// BotToken authenticates against the Telegram Bot API.
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`

	// MongoURI is the persistence connection string.
	MongoURI string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`

	// DBName is the target database name.
	DBName string `envconfig:"DB_NAME" default:"event_reminder_bot"`
}

// Load reads the configuration from the environment. A missing bot
// token is an error: the process must refuse to start without it.
func Load() (*Config, error) {
	// Best effort; absence of a .env file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return &cfg, nil
}
