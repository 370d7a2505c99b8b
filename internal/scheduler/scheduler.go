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

// Package scheduler runs the periodic check-in dispatch loop: find due
// users, fetch the active campaign, send each user a prompt, and advance
// their next-due timestamp.
//
// A Redis lease guards against overlapping cycles: if a run outlives the
// tick interval, the next tick is skipped and logged rather than run
// concurrently. Within a cycle every user gets their own error boundary:
// one bad address never blocks the batch.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/mailer"
	"github.com/everkeep/outreach/internal/metrics"
	"github.com/everkeep/outreach/internal/models"
)

// UserDirectory is the scheduler's view of the user store.
type UserDirectory interface {
	ListDue(ctx context.Context, now time.Time) ([]models.UserRecord, error)
	Reschedule(ctx context.Context, userID string, nextDue time.Time) error
}

// CampaignSource resolves the currently active prompt.
type CampaignSource interface {
	Current(ctx context.Context) (*models.Campaign, error)
}

// Sender delivers one outbound message.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// CycleLease serialises scheduler cycles across processes.
type CycleLease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler drives periodic check-in dispatch.
type Scheduler struct {
	users    UserDirectory
	campaign CampaignSource
	sender   Sender
	lease    CycleLease
	audit    audit.Logger
	baseURL  string
	interval time.Duration
	now      func() time.Time
}

// New creates a scheduler. baseURL is used to build each user's check-in
// resumption link.
func New(users UserDirectory, campaign CampaignSource, sender Sender, lease CycleLease, auditLog audit.Logger, baseURL string, interval time.Duration) *Scheduler {
	return &Scheduler{
		users:    users,
		campaign: campaign,
		sender:   sender,
		lease:    lease,
		audit:    auditLog,
		baseURL:  baseURL,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the dispatch loop. The first cycle fires immediately, then
// one per interval. It blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("check-in scheduler starting", "interval", s.interval)

	// Do an initial cycle immediately
	s.Cycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("check-in scheduler stopping")
			return
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle runs one dispatch pass. It is fire-and-forget from the caller's
// perspective: all failures are logged and audited, none propagate.
func (s *Scheduler) Cycle(ctx context.Context) {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx)
		if err != nil {
			slog.Error("cycle lease acquire failed, skipping cycle", "error", err)
			metrics.SchedulerCycles.WithLabelValues("failed").Inc()
			return
		}
		if !ok {
			slog.Warn("previous scheduler cycle still in flight, skipping this tick")
			metrics.SchedulerCycles.WithLabelValues("skipped_lease").Inc()
			return
		}
		defer func() {
			if err := s.lease.Release(ctx); err != nil {
				slog.Warn("cycle lease release failed", "error", err)
			}
		}()
	}

	now := s.now().UTC()

	due, err := s.users.ListDue(ctx, now)
	if err != nil {
		slog.Error("list due users failed", "error", err)
		s.audit.Record(ctx, audit.Entry{
			Action:  "checkin_cycle_failed",
			Status:  audit.StatusFailure,
			Details: map[string]any{"error": err.Error()},
		})
		metrics.SchedulerCycles.WithLabelValues("failed").Inc()
		return
	}

	if len(due) == 0 {
		slog.Info("no users due for check-in")
		metrics.SchedulerCycles.WithLabelValues("completed").Inc()
		return
	}

	// No campaign means no emails this cycle, state untouched. A partial
	// batch against a missing prompt would be worse than a late one.
	campaign, err := s.campaign.Current(ctx)
	if err != nil || campaign == nil {
		detail := "no active campaign"
		if err != nil {
			detail = err.Error()
		}
		slog.Error("cannot resolve active campaign, aborting cycle", "due_users", len(due), "error", detail)
		s.audit.Record(ctx, audit.Entry{
			Action:  "checkin_cycle_failed",
			Status:  audit.StatusFailure,
			Details: map[string]any{"error": detail, "due_users": len(due)},
		})
		metrics.SchedulerCycles.WithLabelValues("no_campaign").Inc()
		return
	}

	slog.Info("dispatching check-ins", "due_users", len(due), "campaign_id", campaign.ID)

	sent := 0
	for _, user := range due {
		if err := s.dispatchOne(ctx, user, campaign, now); err != nil {
			slog.Error("check-in dispatch failed",
				"user_id", user.ID,
				"error", err,
			)
			s.audit.Record(ctx, audit.Entry{
				Action:     "checkin_send_failed",
				ResourceID: user.ID,
				Status:     audit.StatusFailure,
				Details:    map[string]any{"error": err.Error()},
			})
			metrics.CheckinsSent.WithLabelValues("failed").Inc()
			continue
		}
		sent++
		metrics.CheckinsSent.WithLabelValues("sent").Inc()
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "checkin_cycle_complete",
		ResourceID: campaign.ID,
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"due": len(due), "sent": sent},
	})
	metrics.SchedulerCycles.WithLabelValues("completed").Inc()
}

// dispatchOne sends a single user their check-in and reschedules them.
// A reschedule failure after a successful send is an error: the user
// would be re-mailed next cycle, which is the documented at-least-once
// behaviour, but it still needs eyes on it.
func (s *Scheduler) dispatchOne(ctx context.Context, user models.UserRecord, campaign *models.Campaign, now time.Time) error {
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Your check-in",
		Text:    checkinBody(campaign.Prompt, s.baseURL, user.VerificationToken),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	next := models.NextDue(user.Cadence, now)
	if err := s.users.Reschedule(ctx, user.ID, next); err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "checkin_sent",
		ResourceID: user.ID,
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"campaign_id": campaign.ID, "next_due": next.Format(time.RFC3339)},
	})
	return nil
}

func checkinBody(prompt, baseURL, token string) string {
	body := prompt + "\n\nJust reply to this email to update us."
	if token != "" {
		body += fmt.Sprintf("\n\nPrefer a form? Pick up where you left off: %s/checkin/%s", baseURL, token)
	}
	return body
}
