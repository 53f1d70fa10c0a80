package httpapi

import (
	"fmt"
	"strings"
)

const (
	defaultListenAddr    = ":8080"
	defaultAllowedOrigin = "http://localhost:3000"
	defaultStaticRoute   = "/generated"
	walletHistoryLimit   = 20
	maxTopUpAmount       = 10000
)

// Config aggregates runtime settings for the HTTP server.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	JWTSecret      string
	WebhookSecret  string
	LibraryID      string
	ArtifactDir    string
}

// Validate fills defaults and rejects unusable values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("webhook secret is required")
	}
	if strings.TrimSpace(cfg.LibraryID) == "" {
		return fmt.Errorf("encode library id is required")
	}
	if strings.TrimSpace(cfg.ArtifactDir) == "" {
		return fmt.Errorf("artifact dir is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
