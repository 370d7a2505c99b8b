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

// Package realtime subscribes to the submission change-feed (Postgres
// LISTEN/NOTIFY) and forwards new form submissions to the workflow engine.
//
// Notifications flow through an explicit channel consumed by a dedicated
// dispatch loop, so "one bad event can't kill the subscription" holds
// structurally: the listener goroutine only moves bytes, and the dispatch
// loop catches every per-event failure.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/metrics"
	"github.com/everkeep/outreach/internal/models"
	"github.com/everkeep/outreach/internal/store"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Workflow is the drafting entry point submissions are forwarded to.
type Workflow interface {
	ProcessSubmission(ctx context.Context, sub models.Submission) (*models.Draft, error)
}

// Listener consumes the submission change-feed.
type Listener struct {
	pool     *pgxpool.Pool
	workflow Workflow
	audit    audit.Logger
}

// NewListener creates a change-feed listener.
func NewListener(pool *pgxpool.Pool, workflow Workflow, auditLog audit.Logger) *Listener {
	return &Listener{
		pool:     pool,
		workflow: workflow,
		audit:    auditLog,
	}
}

// Run blocks until the context is cancelled, reconnecting with backoff
// whenever the LISTEN connection drops. Disconnection is a failure-status
// audit entry, never fatal.
func (l *Listener) Run(ctx context.Context) {
	events := make(chan string, 64)
	go l.dispatch(ctx, events)

	backoff := initialBackoff
	for {
		err := l.listen(ctx, events)
		if ctx.Err() != nil {
			slog.Info("realtime listener stopping")
			return
		}

		slog.Error("change-feed connection lost", "error", err, "retry_in", backoff)
		l.audit.Record(ctx, audit.Entry{
			Action:  "realtime_disconnected",
			Status:  audit.StatusFailure,
			Details: map[string]any{"error": err.Error()},
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// listen holds one LISTEN connection and forwards payloads until it fails.
func (l *Listener) listen(ctx context.Context, events chan<- string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+store.NotifyChannel); err != nil {
		return err
	}

	slog.Info("subscribed to submission change-feed", "channel", store.NotifyChannel)
	l.audit.Record(ctx, audit.Entry{
		Action: "realtime_connected",
		Status: audit.StatusInfo,
	})

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		select {
		case events <- n.Payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// dispatch consumes forwarded payloads one at a time.
func (l *Listener) dispatch(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-events:
			l.handle(ctx, payload)
		}
	}
}

// handle processes a single change-feed payload. Every failure is caught
// here; nothing propagates back into the subscription.
func (l *Listener) handle(ctx context.Context, payload string) {
	var sub models.Submission
	if err := json.Unmarshal([]byte(payload), &sub); err != nil || sub.ID == "" {
		slog.Warn("discarding malformed change-feed payload", "payload_len", len(payload))
		metrics.RealtimeEvents.WithLabelValues("malformed").Inc()
		return
	}

	l.audit.Record(ctx, audit.Entry{
		Action:     "realtime_event_received",
		ResourceID: sub.ID,
		Status:     audit.StatusInfo,
		Details:    map[string]any{"user_id": sub.UserID, "source": sub.Source},
	})

	if _, err := l.workflow.ProcessSubmission(ctx, sub); err != nil {
		// The workflow already audited its own failure; the subscription
		// just moves on to the next event.
		slog.Error("change-feed submission processing failed",
			"submission_id", sub.ID,
			"error", err,
		)
		metrics.RealtimeEvents.WithLabelValues("failed").Inc()
		return
	}
	metrics.RealtimeEvents.WithLabelValues("processed").Inc()
}
