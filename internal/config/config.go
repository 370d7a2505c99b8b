// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MailerConfig holds credentials for the outbound email provider. Either
// a static API key or an OAuth2 client-credentials grant (token_url +
// client id/secret) authenticates the send API; the grant wins when both
// are set.
type MailerConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	From         string `yaml:"from"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config holds all configuration for the outreach service.
type Config struct {
	// Postgres
	DatabaseURL string

	// Redis
	RedisURL      string
	OutboundQueue string
	DedupTTL      time.Duration

	// Scheduler
	CheckinInterval time.Duration

	// HTTP servers
	Port        int // operator API + health
	WebhookPort int // inbound email webhooks

	// Inbound webhook signing secret. Empty disables verification
	// (local development only).
	WebhookSecret string

	// BaseURL is the public URL check-in links are built against.
	BaseURL string

	// Outbound email provider
	Mailer MailerConfig

	// Analysis service that drafts responses from submissions.
	AnalysisURL string

	// Secret for operator JWTs on the review API.
	OperatorJWTSecret string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Outbound string `yaml:"outbound"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Webhook struct {
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`
	Mailer   MailerConfig `yaml:"mailer"`
	Analysis struct {
		URL string `yaml:"url"`
	} `yaml:"analysis"`
	Operator struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"operator"`
	BaseURL string `yaml:"base_url"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. Environment variables win
// over YAML for every secret so deployments can inject them directly.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:       firstNonEmpty(os.Getenv("DATABASE_URL"), raw.Database.URL),
		RedisURL:          firstNonEmpty(os.Getenv("REDIS_URL"), raw.Redis.URL, "redis://localhost:6379/0"),
		OutboundQueue:     firstNonEmpty(os.Getenv("OUTBOUND_QUEUE"), raw.Redis.Queues.Outbound, "outbound_emails"),
		DedupTTL:          envOrDefaultDuration("DEDUP_TTL", 24*time.Hour),
		CheckinInterval:   envOrDefaultDuration("CHECKIN_INTERVAL", time.Hour),
		Port:              envOrDefaultInt("PORT", 8080),
		WebhookPort:       envOrDefaultInt("WEBHOOK_PORT", 8081),
		WebhookSecret:     firstNonEmpty(os.Getenv("WEBHOOK_SECRET"), raw.Webhook.Secret),
		BaseURL:           firstNonEmpty(os.Getenv("BASE_URL"), raw.BaseURL, "http://localhost:8080"),
		AnalysisURL:       firstNonEmpty(os.Getenv("ANALYSIS_URL"), raw.Analysis.URL),
		OperatorJWTSecret: firstNonEmpty(os.Getenv("OPERATOR_JWT_SECRET"), raw.Operator.JWTSecret),
		Mailer: MailerConfig{
			BaseURL:      firstNonEmpty(os.Getenv("MAILER_BASE_URL"), raw.Mailer.BaseURL),
			APIKey:       firstNonEmpty(os.Getenv("MAILER_API_KEY"), raw.Mailer.APIKey),
			From:         firstNonEmpty(os.Getenv("MAILER_FROM"), raw.Mailer.From, "checkin@everkeep.example"),
			TokenURL:     firstNonEmpty(os.Getenv("MAILER_TOKEN_URL"), raw.Mailer.TokenURL),
			ClientID:     firstNonEmpty(os.Getenv("MAILER_CLIENT_ID"), raw.Mailer.ClientID),
			ClientSecret: firstNonEmpty(os.Getenv("MAILER_CLIENT_SECRET"), raw.Mailer.ClientSecret),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database URL configured — set DATABASE_URL or database.url in config.yaml")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
