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

// Everkeep Outreach — One-Shot Check-In Command
//
// Standalone CLI tool that runs a single check-in dispatch cycle and
// exits. Intended for cron-style deployments and manual catch-up runs
// where the long-running scheduler is not wanted.
//
// Usage:
//
//	go run ./cmd/checkin/ [--timeout 10m] [--no-lease]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/config"
	"github.com/everkeep/outreach/internal/lease"
	"github.com/everkeep/outreach/internal/mailer"
	"github.com/everkeep/outreach/internal/scheduler"
	"github.com/everkeep/outreach/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	timeoutFlag := flag.Duration("timeout", 10*time.Minute, "Overall deadline for the cycle")
	noLeaseFlag := flag.Bool("no-lease", false, "Skip the cycle lease (run even if the service scheduler holds it)")
	flag.Parse()

	slog.Info("starting one-shot check-in cycle", "timeout", *timeoutFlag)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	// --- Audit Sink + Stores ---
	auditSink, err := audit.NewSink(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise audit sink", "error", err)
		os.Exit(1)
	}
	users, err := store.NewUserStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise user store", "error", err)
		os.Exit(1)
	}
	campaigns, err := store.NewCampaignStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise campaign store", "error", err)
		os.Exit(1)
	}

	// --- Mailer ---
	mail := buildMailer(ctx, cfg.Mailer)

	// --- Run One Cycle ---
	var cycleLease scheduler.CycleLease
	if !*noLeaseFlag {
		cycleLease = lease.New(rdb, "checkin_cycle", *timeoutFlag)
	}

	sched := scheduler.New(users, campaigns, mail, cycleLease, auditSink, cfg.BaseURL, cfg.CheckinInterval)
	sched.Cycle(ctx)

	slog.Info("check-in cycle finished")
}

// buildMailer authenticates with an OAuth2 client-credentials grant when
// the provider is configured for one, falling back to the static API key.
func buildMailer(ctx context.Context, mc config.MailerConfig) *mailer.Client {
	if mc.TokenURL == "" {
		return mailer.NewClient(nil, mc.BaseURL, mc.APIKey, mc.From)
	}
	creds := &clientcredentials.Config{
		ClientID:     mc.ClientID,
		ClientSecret: mc.ClientSecret,
		TokenURL:     mc.TokenURL,
	}
	return mailer.NewClient(creds.Client(ctx), mc.BaseURL, "", mc.From)
}
