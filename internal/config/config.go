// Package config provides configuration management for the DMXX server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Host string
	Port int
	Env  string

	// Security (from config file)
	Password    string
	SecretKey   string
	IPWhitelist []string

	// Database configuration
	DatabaseURL string

	// Engine configuration
	FrameRateHz    int           // Output frame rate (44Hz nominal)
	MinFrameRateHz int           // Configurable floor
	WriteDeadline  time.Duration // Client socket write deadline

	// Scene engine configuration
	TransitionRateHz int // Transition sampling rate (default 40)

	// CORS configuration
	CORSOrigin string
}

// FileConfig mirrors the persisted configuration file. The engine treats
// the file as an input; it is never written in the hot path.
type FileConfig struct {
	Password    string   `json:"password"`
	SecretKey   string   `json:"secret_key"`
	IPWhitelist []string `json:"ip_whitelist"`
	Host        string   `json:"host"`
	Port        int      `json:"port"`
}

// Load loads configuration from the config file (if present) and
// environment variables. DMXX_HOST and DMXX_PORT override file values.
func Load() *Config {
	file := loadFile(getEnv("DMXX_CONFIG", "config.json"))

	host := file.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := file.Port
	if port == 0 {
		port = 8000
	}

	cfg := &Config{
		Host: getEnv("DMXX_HOST", host),
		Port: getEnvInt("DMXX_PORT", port),
		Env:  getEnv("ENV", "development"),

		Password:    file.Password,
		SecretKey:   file.SecretKey,
		IPWhitelist: file.IPWhitelist,

		DatabaseURL: getEnv("DATABASE_URL", "file:./dmxx.db"),

		FrameRateHz:    getEnvInt("DMX_FRAME_RATE", 44),
		MinFrameRateHz: getEnvInt("DMX_MIN_FRAME_RATE", 20),
		WriteDeadline:  time.Duration(getEnvInt("WS_WRITE_DEADLINE_MS", 5000)) * time.Millisecond,

		TransitionRateHz: getEnvInt("TRANSITION_RATE", 40),

		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}

	if cfg.FrameRateHz < cfg.MinFrameRateHz {
		cfg.FrameRateHz = cfg.MinFrameRateHz
	}
	if cfg.Password == "" {
		cfg.Password = "dmxx"
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = "dmxx-secret-key-change-in-production"
	}

	return cfg
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// loadFile reads the configuration file, returning a zero value if the
// file is absent or malformed. A broken config file must not prevent
// startup; defaults apply instead.
func loadFile(path string) FileConfig {
	var file FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return file
	}
	_ = json.Unmarshal(data, &file)
	return file
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
