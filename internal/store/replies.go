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

// ReplyStore persists inbound replies. Rows are write-once.
type ReplyStore struct {
	pool *pgxpool.Pool
}

// NewReplyStore creates a reply store backed by the given Postgres pool.
// It ensures the replies table exists on creation.
func NewReplyStore(ctx context.Context, pool *pgxpool.Pool) (*ReplyStore, error) {
	s := &ReplyStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure replies schema: %w", err)
	}
	slog.Info("reply store initialised")
	return s, nil
}

func (s *ReplyStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS replies (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			campaign_id       TEXT,
			email_content     TEXT NOT NULL,
			content_stripped  TEXT NOT NULL,
			received_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_replies_user ON replies(user_id);
		CREATE INDEX IF NOT EXISTS idx_replies_received ON replies(received_at);
	`)
	return err
}

// Insert stores a new reply and returns the persisted record.
func (s *ReplyStore) Insert(ctx context.Context, userID string, campaignID *string, raw, stripped string) (*models.Reply, error) {
	r := models.Reply{
		ID:              uuid.New().String(),
		UserID:          userID,
		CampaignID:      campaignID,
		EmailContent:    raw,
		ContentStripped: stripped,
		ReceivedAt:      time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO replies (id, user_id, campaign_id, email_content, content_stripped, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.UserID, r.CampaignID, r.EmailContent, r.ContentStripped, r.ReceivedAt)
	if err != nil {
		return nil, fmt.Errorf("insert reply: %w", err)
	}
	return &r, nil
}

// ListByUser returns a user's replies, newest first.
func (s *ReplyStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.Reply, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, campaign_id, email_content, content_stripped, received_at
		FROM replies
		WHERE user_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replies []models.Reply
	for rows.Next() {
		var r models.Reply
		if err := rows.Scan(&r.ID, &r.UserID, &r.CampaignID, &r.EmailContent, &r.ContentStripped, &r.ReceivedAt); err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, rows.Err()
}
