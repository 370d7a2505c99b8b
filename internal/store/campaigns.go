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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/outreach/internal/models"
)

// CampaignStore resolves the currently active outreach prompt.
type CampaignStore struct {
	pool *pgxpool.Pool
}

// NewCampaignStore creates a campaign store backed by the given Postgres
// pool. It ensures the campaigns table exists on creation.
func NewCampaignStore(ctx context.Context, pool *pgxpool.Pool) (*CampaignStore, error) {
	s := &CampaignStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure campaigns schema: %w", err)
	}
	slog.Info("campaign store initialised")
	return s, nil
}

func (s *CampaignStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS campaigns (
			id         TEXT PRIMARY KEY,
			prompt     TEXT NOT NULL,
			is_active  BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_campaigns_active ON campaigns(created_at) WHERE is_active;
	`)
	return err
}

// Current returns the campaign in effect: the most-recently-created active
// one. Nothing at the storage layer prevents several active campaigns, so
// selection is last-write-wins, with id as a deterministic tie-break for
// equal creation timestamps. Returns (nil, nil) when no campaign is active.
func (s *CampaignStore) Current(ctx context.Context) (*models.Campaign, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, prompt, is_active, created_at
		FROM campaigns
		WHERE is_active
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)

	var c models.Campaign
	err := row.Scan(&c.ID, &c.Prompt, &c.IsActive, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
