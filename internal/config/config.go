package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the global ~/.roomsync/config.toml, with ROOMSYNC_*
// environment overrides applied on top of whatever the file holds.
type Config struct {
	Session string `toml:"session" envconfig:"SESSION"`

	// Backend selects the store binding: "mongo" or "rest".
	Backend string `toml:"backend" envconfig:"BACKEND"`

	// Listen is the local control API address.
	Listen string `toml:"listen" envconfig:"LISTEN"`

	// Identity bound once authentication (external) has happened.
	UserID    string `toml:"user_id" envconfig:"USER_ID"`
	UserName  string `toml:"user_name" envconfig:"USER_NAME"`
	UserEmail string `toml:"user_email" envconfig:"USER_EMAIL"`

	Mongo MongoConfig `toml:"mongo"`
	Rest  RestConfig  `toml:"rest"`

	MessagesCollection string `toml:"messages_collection" envconfig:"MESSAGES_COLLECTION"`
	PresenceCollection string `toml:"presence_collection" envconfig:"PRESENCE_COLLECTION"`

	HeartbeatSeconds   int  `toml:"heartbeat_seconds" envconfig:"HEARTBEAT_SECONDS"`
	PresenceTTLSeconds int  `toml:"presence_ttl_seconds" envconfig:"PRESENCE_TTL_SECONDS"`
	HistoryLimit       int  `toml:"history_limit" envconfig:"HISTORY_LIMIT"`
	Debug              bool `toml:"debug" envconfig:"DEBUG"`
}

// MongoConfig configures the MongoDB store binding.
type MongoConfig struct {
	URI      string `toml:"uri" envconfig:"MONGO_URI"`
	Database string `toml:"database" envconfig:"MONGO_DATABASE"`
}

// RestConfig configures the REST + realtime websocket store binding.
type RestConfig struct {
	Endpoint         string `toml:"endpoint" envconfig:"REST_ENDPOINT"`
	RealtimeEndpoint string `toml:"realtime_endpoint" envconfig:"REST_REALTIME_ENDPOINT"`
	Project          string `toml:"project" envconfig:"REST_PROJECT"`
	Key              string `toml:"key" envconfig:"REST_KEY"`
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		Backend:            "mongo",
		Listen:             "127.0.0.1:7350",
		Mongo:              MongoConfig{URI: "mongodb://localhost:27017", Database: "roomsync"},
		MessagesCollection: "messages",
		PresenceCollection: "presence",
		HeartbeatSeconds:   60,
		PresenceTTLSeconds: 300,
		HistoryLimit:       100,
	}
}

// Load reads config from the given path, layering file values over defaults
// and ROOMSYNC_* environment variables over both. A missing file is an error;
// env processing failures are too.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("roomsync", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load, except a missing file yields defaults
// (with environment overrides still applied).
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := envconfig.Process("roomsync", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// HeartbeatInterval returns the heartbeat tick as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// PresenceTTL returns the roster staleness threshold as a duration.
func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}
