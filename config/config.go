package config

import (
	"log/slog"
	"os"
	"time"
)

type Config struct {
	// MongoDB configuration
	MongoURI     string
	DatabaseName string

	// Deployment timezone used to bucket sessions into calendar days
	Timezone string

	// Server configuration
	Port string
}

func LoadConfig() *Config {
	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("MONGO_DB_NAME", "pos_monitor"),
		Timezone:     getEnv("TIMEZONE", "Local"),
		Port:         getEnv("PORT", "8080"),
	}

	// Validate required configuration
	if cfg.MongoURI == "" {
		slog.Error("MONGO_URI not set")
	}

	return cfg
}

// Location resolves the configured timezone name. Falls back to the
// process-local zone if the name does not parse.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Error("Invalid TIMEZONE, using local zone", "timezone", c.Timezone, "error", err)
		return time.Local
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
