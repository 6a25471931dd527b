package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ClientOrigin    string        `yaml:"client_origin"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Store struct {
		// Driver is "postgres" or "memory".
		Driver            string        `yaml:"driver"`
		MigrateOnStart    bool          `yaml:"migrate_on_start"`
		ReadinessInterval time.Duration `yaml:"readiness_interval"`
	} `yaml:"store"`

	Events struct {
		// NATSURL enables the JetStream mirror when set.
		NATSURL       string `yaml:"nats_url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"events"`

	Session struct {
		ChatCapacity   int           `yaml:"chat_capacity"`
		CommandTimeout time.Duration `yaml:"command_timeout"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"session"`

	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	var c Config
	c.Server.Port = "8080"
	c.Server.ClientOrigin = "*"
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Store.Driver = "postgres"
	c.Store.MigrateOnStart = true
	c.Store.ReadinessInterval = 5 * time.Second
	c.Events.StreamName = "LIVEPOLL_EVENTS"
	c.Events.SubjectPrefix = "livepoll.events"
	c.Session.ChatCapacity = 200
	c.Session.CommandTimeout = 10 * time.Second
	c.Session.MaxMessageSize = 4096
	c.Log.Level = "info"
	c.Log.Console = true
	return &c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults, then applies environment
// overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ClientOrigin = getEnv("CLIENT_ORIGIN", c.Server.ClientOrigin)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.MigrateOnStart = getEnvAsBool("MIGRATE_ON_START", c.Store.MigrateOnStart)
	c.Events.NATSURL = getEnv("NATS_URL", c.Events.NATSURL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.ReadinessInterval <= 0 {
		return fmt.Errorf("store.readiness_interval must be positive")
	}
	if c.Session.ChatCapacity <= 0 {
		return fmt.Errorf("session.chat_capacity must be positive")
	}
	return nil
}

// allowedOrigins splits the comma separated client origin setting.
func (c *Config) allowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.ClientOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
