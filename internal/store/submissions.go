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

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/outreach/internal/models"
)

// NotifyChannel is the Postgres channel new submissions are announced on.
const NotifyChannel = "submission_events"

// SubmissionStore persists workflow-triggering submissions. An AFTER
// INSERT trigger announces each new row on NotifyChannel, except rows
// with source 'reply' — those are handed to the workflow directly by the
// webhook pipeline and must not be processed a second time via the feed.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

// NewSubmissionStore creates a submission store backed by the given
// Postgres pool. It ensures the table and the notify trigger exist.
func NewSubmissionStore(ctx context.Context, pool *pgxpool.Pool) (*SubmissionStore, error) {
	s := &SubmissionStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure submissions schema: %w", err)
	}
	slog.Info("submission store initialised")
	return s, nil
}

func (s *SubmissionStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			primary_goal    TEXT DEFAULT '',
			additional_info TEXT DEFAULT '',
			source          TEXT DEFAULT 'form',
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(user_id);

		CREATE OR REPLACE FUNCTION notify_submission() RETURNS trigger AS $$
		BEGIN
			IF NEW.source <> 'reply' THEN
				PERFORM pg_notify('submission_events', row_to_json(NEW)::text);
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS trg_submissions_notify ON submissions;
		CREATE TRIGGER trg_submissions_notify
			AFTER INSERT ON submissions
			FOR EACH ROW EXECUTE FUNCTION notify_submission();
	`)
	return err
}

// Insert stores a new submission and returns the persisted record.
func (s *SubmissionStore) Insert(ctx context.Context, userID, primaryGoal, additionalInfo, source string) (*models.Submission, error) {
	sub := models.Submission{
		ID:             uuid.New().String(),
		UserID:         userID,
		PrimaryGoal:    primaryGoal,
		AdditionalInfo: additionalInfo,
		Source:         source,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (id, user_id, primary_goal, additional_info, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.UserID, sub.PrimaryGoal, sub.AdditionalInfo, sub.Source, sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return &sub, nil
}
