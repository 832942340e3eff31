// Package config loads application configuration from an optional YAML
// file with environment-variable overrides, following the teacher's
// two-stage Load/loadEnvOverrides pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's resolved configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Target   TargetConfig   `yaml:"target"`
	Presets  PresetsConfig  `yaml:"presets"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains the admission HTTP server settings.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Workers int    `yaml:"workers"`
}

// TargetConfig describes the service under test and per-request defaults.
type TargetConfig struct {
	ServiceURL     string        `yaml:"service_url"`
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// PresetsConfig names the preset store's backing file.
type PresetsConfig struct {
	File string `yaml:"file"`
}

// DatabaseConfig contains the optional historical-archive connection
// settings. DSN comes from the YAML file's dsn or DATABASE_URL; when it is
// empty (the default) the archive is disabled entirely (see
// internal/database).
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file, if present, then applies
// environment variable overrides on top of it.
func Load(filePath string) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8000,
			Workers: 1,
		},
		Target: TargetConfig{
			ServiceURL:     "http://localhost:8080",
			BaseURL:        "http://localhost:8080/api/primes",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		Presets: PresetsConfig{
			File: "data/presets.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	data, err := os.ReadFile(filePath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	loadEnvOverrides(config)

	return config, nil
}

// loadEnvOverrides applies the environment variables named in SPEC_FULL.md
// §6 over whatever the YAML file (or the defaults above) supplied.
func loadEnvOverrides(config *Config) {
	if serviceURL := os.Getenv("SERVICE_URL"); serviceURL != "" {
		config.Target.ServiceURL = serviceURL
		config.Target.BaseURL = serviceURL + "/api/primes"
	}
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		config.Target.BaseURL = baseURL
	}
	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		if seconds, err := strconv.ParseFloat(timeout, 64); err == nil {
			config.Target.RequestTimeout = time.Duration(seconds * float64(time.Second))
		}
	}
	if retries := os.Getenv("MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Target.MaxRetries = n
		}
	}
	if host := os.Getenv("API_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("API_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if workers := os.Getenv("API_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			config.Server.Workers = n
		}
	}
	if presetsFile := os.Getenv("PRESETS_FILE"); presetsFile != "" {
		config.Presets.File = presetsFile
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Database.DSN = dsn
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
}
