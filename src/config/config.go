package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	PlaidClientID  string
	PlaidSecret    string
	PlaidEnv       string
	DemoAPIKey     string
	FakePlaid      bool
	DatabaseURL    string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
}

func (c Config) Sandbox() bool { return c.PlaidEnv == "sandbox" }

// Load reads the environment, after a local .env file when one is present.
func Load() (Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := Config{
		Port:           getEnv("PORT", "3000"),
		PlaidClientID:  getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:    getEnv("PLAID_SECRET", ""),
		PlaidEnv:       strings.ToLower(getEnv("PLAID_ENV", "sandbox")),
		DemoAPIKey:     getEnv("DEMO_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
	}

	fake, err := strconv.ParseBool(getEnv("FAKE_PLAID", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid FAKE_PLAID: %w", err)
	}
	cfg.FakePlaid = fake

	switch cfg.PlaidEnv {
	case "sandbox", "development", "production":
	default:
		return Config{}, fmt.Errorf("invalid PLAID_ENV %q: must be sandbox, development or production", cfg.PlaidEnv)
	}

	return cfg, nil
}

// Warnings lists settings that are missing but do not stop the server.
func (c Config) Warnings() []string {
	var out []string
	if c.PlaidClientID == "" && !c.FakePlaid {
		out = append(out, "PLAID_CLIENT_ID not set")
	}
	if c.PlaidSecret == "" && !c.FakePlaid {
		out = append(out, "PLAID_SECRET not set")
	}
	if c.DemoAPIKey == "" {
		out = append(out, "DEMO_API_KEY not set, every protected request will be rejected")
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
