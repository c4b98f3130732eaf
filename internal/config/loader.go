package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnvVar names the environment variable carrying the path to the
// gateway's TOML configuration file.
const ConfigFileEnvVar = "GATEWAY_CONFIG_FILE"

// envPrefixes maps environment variable prefixes to the scalar config
// tables they override. Map-valued tables (network.<name>, backends.<name>,
// ...) are configured exclusively through the TOML file.
var envPrefixes = map[string]string{
	"GATEWAY_APP_":     "app",
	"GATEWAY_LOG_":     "log",
	"GATEWAY_PROXY_":   "proxy",
	"GATEWAY_STORAGE_": "storage",
}

// Load loads configuration from the TOML file named by GATEWAY_CONFIG_FILE,
// layers environment-variable overrides on top, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if configFile := os.Getenv(ConfigFileEnvVar); configFile != "" {
		if err := loadFromFile(k, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	for prefix, path := range envPrefixes {
		if err := loadEnvPrefix(k, prefix, path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a TOML file.
func loadFromFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return k.Load(file.Provider(path), toml.Parser())
}

// loadEnvPrefix loads environment variables with the given prefix into the
// config path they override.
func loadEnvPrefix(k *koanf.Koanf, prefix, path string) error {
	return k.Load(env.Provider(prefix, ".", func(s string) string {
		return path + "." + strings.ToLower(strings.TrimPrefix(s, prefix))
	}), nil)
}
