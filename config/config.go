package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Referral ReferralConfig
}

type ServerConfig struct {
	Port           string
	ServiceToken   string // bearer expected from the gateway
	AllowedOrigins string
	Environment    string
	// TrustedProxies may set X-Forwarded-For. Empty trusts any peer.
	TrustedProxies []string
}

type DatabaseConfig struct {
	URL string
}

type ReferralConfig struct {
	ShareBaseURL  string
	SweepInterval time.Duration
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	sweep, err := time.ParseDuration(getEnv("EXPIRY_SWEEP_INTERVAL", "1h"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "5300"),
			ServiceToken:   os.Getenv("REFERRAL_SERVICE_TOKEN"),
			AllowedOrigins: normalizeOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
			Environment:    getEnv("ENVIRONMENT", "development"),
			TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Referral: ReferralConfig{
			ShareBaseURL:  strings.TrimRight(getEnv("SHARE_BASE_URL", "http://localhost:3000"), "/"),
			SweepInterval: sweep,
		},
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// normalizeOrigins trims spaces around each comma separated origin.
func normalizeOrigins(raw string) string {
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
