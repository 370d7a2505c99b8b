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

// Everkeep Outreach Service
//
// Entry point for the check-in outreach service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Starts the inbound email webhook server
//  4. Subscribes to the form-submission change-feed
//  5. Runs the periodic check-in scheduler
//  6. Serves the operator review API, health, and metrics
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/everkeep/outreach/internal/analysis"
	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/auth"
	"github.com/everkeep/outreach/internal/config"
	"github.com/everkeep/outreach/internal/dedup"
	"github.com/everkeep/outreach/internal/lease"
	"github.com/everkeep/outreach/internal/mailer"
	"github.com/everkeep/outreach/internal/queue"
	"github.com/everkeep/outreach/internal/realtime"
	"github.com/everkeep/outreach/internal/review"
	"github.com/everkeep/outreach/internal/scheduler"
	"github.com/everkeep/outreach/internal/signature"
	"github.com/everkeep/outreach/internal/store"
	"github.com/everkeep/outreach/internal/webhook"
	"github.com/everkeep/outreach/internal/workflow"
)

// cycleLeaseTTL is the safety net for a crashed scheduler holder; it must
// comfortably exceed the longest plausible cycle.
const cycleLeaseTTL = 15 * time.Minute

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Everkeep outreach service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"checkin_interval", cfg.CheckinInterval,
		"outbound_queue", cfg.OutboundQueue,
		"webhook_verification", cfg.WebhookSecret != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
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
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.OutboundQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Audit Sink (Postgres) ---
	auditSink, err := audit.NewSink(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise audit sink", "error", err)
		os.Exit(1)
	}

	// --- Collaborator Stores (Postgres) ---
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
	replies, err := store.NewReplyStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise reply store", "error", err)
		os.Exit(1)
	}
	submissions, err := store.NewSubmissionStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise submission store", "error", err)
		os.Exit(1)
	}
	drafts, err := store.NewDraftStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise draft store", "error", err)
		os.Exit(1)
	}

	// --- Outbound Mailer + Analysis ---
	mail := buildMailer(ctx, cfg.Mailer)
	analyzer := analysis.NewClient(nil, cfg.AnalysisURL)

	// --- Workflow Engine ---
	engine := workflow.NewEngine(analyzer, drafts, auditSink)

	// --- Webhook Server (inbound email) ---
	verifier := signature.NewVerifier(cfg.WebhookSecret)
	filter := dedup.NewFilter(rdb, cfg.DedupTTL)
	handler := webhook.NewHandler(verifier, filter, users, campaigns, replies, submissions, engine, auditSink)
	ready, err := webhook.Serve(ctx, cfg.WebhookPort, handler)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Change-Feed Listener (form submissions) ---
	listener := realtime.NewListener(pgPool, engine, auditSink)
	go listener.Run(ctx)

	// --- Check-In Scheduler ---
	cycleLease := lease.New(rdb, "checkin_cycle", cycleLeaseTTL)
	sched := scheduler.New(users, campaigns, mail, cycleLease, auditSink, cfg.BaseURL, cfg.CheckinInterval)
	go sched.Run(ctx)

	// --- Operator API + Health + Metrics ---
	reviewSvc := review.NewService(drafts, publisher, auditSink)
	mux := http.NewServeMux()
	review.Register(mux, reviewSvc, auth.NewMiddleware(cfg.OperatorJWTSecret))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /verify", func(w http.ResponseWriter, r *http.Request) {
		user, err := users.VerifyByToken(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			slog.Error("verification failed", "error", err)
			http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, `{"error": "invalid or already used token"}`, http.StatusNotFound)
			return
		}
		auditSink.Record(r.Context(), audit.Entry{
			Action:     "user_verified",
			ResourceID: user.ID,
			Status:     audit.StatusSuccess,
		})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"verified": true, "email": user.Email})
	})

	// Resumption target for the link embedded in check-in emails: resolves
	// the session token without redeeming it, so the form can prefill from
	// the user's recent history.
	mux.HandleFunc("GET /checkin/{token}", func(w http.ResponseWriter, r *http.Request) {
		user, err := users.GetByToken(r.Context(), r.PathValue("token"))
		if err != nil {
			slog.Error("check-in resumption lookup failed", "error", err)
			http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, `{"error": "unknown check-in link"}`, http.StatusNotFound)
			return
		}
		history, err := replies.ListByUser(r.Context(), user.ID, 10)
		if err != nil {
			slog.Error("reply history lookup failed", "user_id", user.ID, "error", err)
			http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"email":    user.Email,
			"verified": user.Verified,
			"cadence":  user.Cadence,
			"replies":  history,
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop all background goroutines

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("outreach service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("outreach service stopped")
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
