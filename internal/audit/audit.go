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

// Package audit provides the append-only event log every path in the
// service reports through. Entries are written once and never updated.
//
// A failing audit write must never take down the operation being audited:
// the Postgres sink downgrades its own failures to a local warning log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusInfo    = "info"
)

// Entry is a single audit event.
type Entry struct {
	Action     string
	ResourceID string
	Status     string
	Details    map[string]any
}

// Logger is the audit surface components depend on. Record never returns
// an error — by contract, audit failure is not the caller's problem.
type Logger interface {
	Record(ctx context.Context, e Entry)
}

// Sink is the Postgres-backed Logger.
type Sink struct {
	pool *pgxpool.Pool
}

// NewSink creates the audit sink and ensures the audit_log table exists.
func NewSink(ctx context.Context, pool *pgxpool.Pool) (*Sink, error) {
	s := &Sink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	slog.Info("audit sink initialised")
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id          BIGSERIAL PRIMARY KEY,
			action      TEXT NOT NULL,
			resource_id TEXT DEFAULT '',
			status      TEXT NOT NULL,
			details     JSONB,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
		CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
	`)
	return err
}

// Record appends an entry. Storage failures are downgraded to a local
// warning so the primary operation proceeds.
func (s *Sink) Record(ctx context.Context, e Entry) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		// Unmarshalable details still deserve an entry.
		details = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (action, resource_id, status, details)
		VALUES ($1, $2, $3, $4)
	`, e.Action, e.ResourceID, e.Status, details)
	if err != nil {
		slog.Warn("audit write failed, entry logged locally only",
			"action", e.Action,
			"resource_id", e.ResourceID,
			"status", e.Status,
			"error", err,
		)
	}
}
