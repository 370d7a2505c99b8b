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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/outreach/internal/apperr"
	"github.com/everkeep/outreach/internal/models"
)

// DraftStore persists AI-drafted responses and their review transitions.
//
// The status machine is enforced here with conditional single-row
// UPDATEs: a draft leaves pending_review exactly once, no matter how many
// concurrent reviewers try. A lost race surfaces as a ConflictError
// carrying the status the draft actually has.
type DraftStore struct {
	pool *pgxpool.Pool
}

// NewDraftStore creates a draft store backed by the given Postgres pool.
// It ensures the drafts table exists on creation.
func NewDraftStore(ctx context.Context, pool *pgxpool.Pool) (*DraftStore, error) {
	s := &DraftStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure drafts schema: %w", err)
	}
	slog.Info("draft store initialised")
	return s, nil
}

func (s *DraftStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS drafts (
			id             TEXT PRIMARY KEY,
			submission_id  TEXT NOT NULL,
			response       JSONB NOT NULL,
			status         TEXT DEFAULT 'pending_review',
			reviewer_notes TEXT,
			created_at     TIMESTAMPTZ DEFAULT NOW(),
			updated_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
		CREATE INDEX IF NOT EXISTS idx_drafts_submission ON drafts(submission_id);
	`)
	return err
}

// Insert stores a new draft in pending_review and returns it.
func (s *DraftStore) Insert(ctx context.Context, submissionID string, response models.AnalysisResult) (*models.Draft, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal draft response: %w", err)
	}

	now := time.Now().UTC()
	d := models.Draft{
		ID:           uuid.New().String(),
		SubmissionID: submissionID,
		Response:     response,
		Status:       models.DraftPendingReview,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO drafts (id, submission_id, response, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.SubmissionID, responseJSON, d.Status, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}
	return &d, nil
}

// Get retrieves a draft by id. Returns a NotFoundError for unknown ids.
func (s *DraftStore) Get(ctx context.Context, id string) (*models.Draft, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, submission_id, response, status, reviewer_notes, created_at, updated_at
		FROM drafts
		WHERE id = $1
	`, id)
	return scanDraft(row, id)
}

// ListByStatus returns drafts in the given status, oldest first so the
// review queue is worked in arrival order.
func (s *DraftStore) ListByStatus(ctx context.Context, status string) ([]models.Draft, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, submission_id, response, status, reviewer_notes, created_at, updated_at
		FROM drafts
		WHERE status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []models.Draft
	for rows.Next() {
		var d models.Draft
		var responseJSON []byte
		if err := rows.Scan(&d.ID, &d.SubmissionID, &responseJSON, &d.Status, &d.ReviewerNotes, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(responseJSON, &d.Response); err != nil {
			return nil, fmt.Errorf("decode draft %s response: %w", d.ID, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// TransitionIfPending moves a draft out of pending_review into newStatus,
// recording optional reviewer notes. If the draft is not currently
// pending the transition fails with a ConflictError reporting the status
// it actually has; an unknown id fails with a NotFoundError.
func (s *DraftStore) TransitionIfPending(ctx context.Context, id, newStatus string, notes *string) (*models.Draft, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE drafts
		SET status = $1,
		    reviewer_notes = COALESCE($2, reviewer_notes),
		    updated_at = NOW()
		WHERE id = $3 AND status = 'pending_review'
		RETURNING id, submission_id, response, status, reviewer_notes, created_at, updated_at
	`, newStatus, notes, id)

	d, err := scanDraft(row, id)
	if err == nil {
		return d, nil
	}
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}

	// Zero rows updated: either the draft is gone or it already left
	// pending_review. Re-read to tell the two apart.
	return nil, s.conflictOrNotFound(ctx, id)
}

// UpdateResponseIfPending overwrites a pending draft's AI response while
// leaving its status untouched. Same conflict semantics as
// TransitionIfPending.
func (s *DraftStore) UpdateResponseIfPending(ctx context.Context, id string, response models.AnalysisResult) (*models.Draft, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal draft response: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE drafts
		SET response = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending_review'
		RETURNING id, submission_id, response, status, reviewer_notes, created_at, updated_at
	`, responseJSON, id)

	d, err := scanDraft(row, id)
	if err == nil {
		return d, nil
	}
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}
	return nil, s.conflictOrNotFound(ctx, id)
}

func (s *DraftStore) conflictOrNotFound(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &apperr.ConflictError{Status: existing.Status}
}

func scanDraft(row pgx.Row, id string) (*models.Draft, error) {
	var d models.Draft
	var responseJSON []byte
	err := row.Scan(&d.ID, &d.SubmissionID, &responseJSON, &d.Status, &d.ReviewerNotes, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, &apperr.NotFoundError{Resource: "draft", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(responseJSON, &d.Response); err != nil {
		return nil, fmt.Errorf("decode draft %s response: %w", d.ID, err)
	}
	return &d, nil
}
