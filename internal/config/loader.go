package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/skyward-ops/mobfleet/internal/errs"
)

// Load reads configuration from the YAML file named by MOBFLEET_CONFIG, or
// falls back to Default() if that variable is unset, then applies
// environment variable overrides and validates the result. A configuration
// file that is named but unreadable or malformed is a fatal error; an unset
// MOBFLEET_CONFIG is not.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("MOBFLEET_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &errs.FatalConfigError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
		}
		cfg = Default() // start from defaults so the file only needs to set what it overrides
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &errs.FatalConfigError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, &errs.FatalConfigError{Reason: err.Error()}
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("MOBFLEET_MQTT_HOST"); host != "" {
		cfg.MQTT.Host = host
	}
	if port := os.Getenv("MOBFLEET_GCS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.GCS.Port = p
		}
	}
	if level := os.Getenv("MOBFLEET_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
