package threatlens

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AIConfig selects the AI provider used for on-demand incident
// analysis. Detection runs fine without it.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// BruteForceConfig tunes the failed-login monitor.
type BruteForceConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// Config holds process settings. Values come from an optional YAML
// file with environment variables taking precedence.
type Config struct {
	ListenAddr     string           `yaml:"listen_addr"`
	DatabasePath   string           `yaml:"database_path"`
	JWTSecret      string           `yaml:"jwt_secret"`
	SignatureFile  string           `yaml:"signature_file"`
	AllowedOrigins []string         `yaml:"allowed_origins"`
	LogLevel       string           `yaml:"log_level"`
	AI             AIConfig         `yaml:"ai"`
	BruteForce     BruteForceConfig `yaml:"brute_force"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   ":5000",
		DatabasePath: "threatlens.db",
		AllowedOrigins: []string{
			"http://localhost:5173", "http://127.0.0.1:5173",
			"http://localhost:3000", "http://127.0.0.1:3000",
		},
		LogLevel: "info",
		AI:       AIConfig{Model: "openai/gpt-3.5-turbo"},
		BruteForce: BruteForceConfig{
			Threshold: 5,
			Window:    10 * time.Minute,
		},
	}
}

// LoadConfig builds the effective configuration: defaults, overlaid by
// the YAML file at path (when non-empty), overlaid by environment
// variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (set THREATLENS_JWT_SECRET)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnv("THREATLENS_LISTEN_ADDR", c.ListenAddr)
	c.DatabasePath = getEnv("THREATLENS_DB_PATH", c.DatabasePath)
	c.JWTSecret = getEnv("THREATLENS_JWT_SECRET", c.JWTSecret)
	c.SignatureFile = getEnv("THREATLENS_SIGNATURE_FILE", c.SignatureFile)
	c.LogLevel = getEnv("THREATLENS_LOG_LEVEL", c.LogLevel)
	if origins := os.Getenv("THREATLENS_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitAndTrim(origins)
	}
	c.AI.APIKey = getEnv("THREATLENS_AI_API_KEY", getEnv("OPENROUTER_API_KEY", c.AI.APIKey))
	c.AI.Model = getEnv("THREATLENS_AI_MODEL", c.AI.Model)
	c.AI.BaseURL = getEnv("THREATLENS_AI_BASE_URL", c.AI.BaseURL)
	c.BruteForce.Threshold = getEnvInt("THREATLENS_BRUTEFORCE_THRESHOLD", c.BruteForce.Threshold)
	c.BruteForce.Window = getEnvDuration("THREATLENS_BRUTEFORCE_WINDOW", c.BruteForce.Window)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
