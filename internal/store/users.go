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

// Package store provides the Postgres-backed collaborator stores: users,
// campaigns, replies, submissions, and drafts. Each store ensures its own
// schema on construction. Record-level consistency relies on single-row
// UPDATEs — there is no distributed locking here.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/outreach/internal/models"
)

// UserStore provides lookups and schedule updates for user records.
// Registration itself belongs to an external surface; this service only
// reads users, advances their schedules, and redeems verification tokens.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a user store backed by the given Postgres pool.
// It ensures the users table exists on creation.
func NewUserStore(ctx context.Context, pool *pgxpool.Pool) (*UserStore, error) {
	s := &UserStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure users schema: %w", err)
	}
	slog.Info("user store initialised")
	return s, nil
}

func (s *UserStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                 TEXT PRIMARY KEY,
			email              TEXT NOT NULL UNIQUE,
			verified           BOOLEAN DEFAULT FALSE,
			verification_token TEXT DEFAULT '',
			cadence            TEXT DEFAULT 'weekly',
			next_checkin_due   TIMESTAMPTZ NOT NULL,
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			updated_at         TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_due ON users(next_checkin_due) WHERE verified;
		CREATE INDEX IF NOT EXISTS idx_users_token ON users(verification_token) WHERE verification_token <> '';
	`)
	return err
}

// GetByEmail retrieves a user by case-normalised email address.
// Returns (nil, nil) when no such user exists.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, verified, verification_token, cadence,
		       next_checkin_due, created_at, updated_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// ListDue returns all verified users whose next check-in is at or before now.
func (s *UserStore) ListDue(ctx context.Context, now time.Time) ([]models.UserRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, verified, verification_token, cadence,
		       next_checkin_due, created_at, updated_at
		FROM users
		WHERE verified AND next_checkin_due <= $1
		ORDER BY next_checkin_due
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.UserRecord
	for rows.Next() {
		var u models.UserRecord
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Verified, &u.VerificationToken, &u.Cadence,
			&u.NextCheckinDue, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Reschedule persists a user's recomputed next_checkin_due after a
// successful dispatch.
func (s *UserStore) Reschedule(ctx context.Context, userID string, nextDue time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET next_checkin_due = $1, updated_at = NOW()
		WHERE id = $2
	`, nextDue, userID)
	return err
}

// VerifyByToken redeems a one-time verification token. The token is
// cleared in the same statement so it can never be replayed: the
// conditional single-row UPDATE means exactly one caller can win.
// Returns (nil, nil) when the token matches no unredeemed user.
func (s *UserStore) VerifyByToken(ctx context.Context, token string) (*models.UserRecord, error) {
	if token == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET verified = TRUE, verification_token = '', updated_at = NOW()
		WHERE verification_token = $1
		RETURNING id, email, verified, verification_token, cadence,
		          next_checkin_due, created_at, updated_at
	`, token)
	return scanUser(row)
}

// GetByToken looks a user up by their session token without redeeming it.
// Used for unauthenticated form resumption links.
func (s *UserStore) GetByToken(ctx context.Context, token string) (*models.UserRecord, error) {
	if token == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, verified, verification_token, cadence,
		       next_checkin_due, created_at, updated_at
		FROM users
		WHERE verification_token = $1
	`, token)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*models.UserRecord, error) {
	var u models.UserRecord
	err := row.Scan(
		&u.ID, &u.Email, &u.Verified, &u.VerificationToken, &u.Cadence,
		&u.NextCheckinDue, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
