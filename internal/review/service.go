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

// Package review exposes the human approve/reject/edit operations over
// pending drafts. Every transition requires the draft to still be in
// pending_review; losing that race is a conflict carrying the draft's
// actual status, never a silent no-op.
//
// Approve only flips status and enqueues an outbound job — the send
// itself belongs to the dispatch worker.
package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/metrics"
	"github.com/everkeep/outreach/internal/models"
	"github.com/everkeep/outreach/internal/queue"
)

// DraftStore is the review surface over persisted drafts.
type DraftStore interface {
	Get(ctx context.Context, id string) (*models.Draft, error)
	ListByStatus(ctx context.Context, status string) ([]models.Draft, error)
	TransitionIfPending(ctx context.Context, id, newStatus string, notes *string) (*models.Draft, error)
	UpdateResponseIfPending(ctx context.Context, id string, response models.AnalysisResult) (*models.Draft, error)
}

// OutboundPublisher enqueues approved drafts for dispatch.
type OutboundPublisher interface {
	PublishOutbound(ctx context.Context, job queue.OutboundJob) error
}

// Service implements the review operations.
type Service struct {
	drafts    DraftStore
	publisher OutboundPublisher
	audit     audit.Logger
}

// NewService creates a review service.
func NewService(drafts DraftStore, publisher OutboundPublisher, auditLog audit.Logger) *Service {
	return &Service{
		drafts:    drafts,
		publisher: publisher,
		audit:     auditLog,
	}
}

// List returns drafts in the given status, defaulting to the pending queue.
func (s *Service) List(ctx context.Context, status string) ([]models.Draft, error) {
	if status == "" {
		status = models.DraftPendingReview
	}
	return s.drafts.ListByStatus(ctx, status)
}

// Approve transitions a pending draft to sent and enqueues it for
// dispatch. The status flip is the commit point: a publish failure after
// it is audited for operator follow-up, not rolled back.
func (s *Service) Approve(ctx context.Context, id, operator string) (*models.Draft, error) {
	draft, err := s.drafts.TransitionIfPending(ctx, id, models.DraftSent, nil)
	if err != nil {
		metrics.ReviewActions.WithLabelValues("approve", resultLabel(err)).Inc()
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "draft_approved_and_sent",
		ResourceID: draft.ID,
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"operator": operator},
	})
	metrics.ReviewActions.WithLabelValues("approve", "ok").Inc()

	job := queue.OutboundJob{
		DraftID:      draft.ID,
		SubmissionID: draft.SubmissionID,
		Response:     draft.Response,
		ApprovedAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishOutbound(ctx, job); err != nil {
		slog.Error("outbound job publish failed", "draft_id", draft.ID, "error", err)
		s.audit.Record(ctx, audit.Entry{
			Action:     "outbound_publish_failed",
			ResourceID: draft.ID,
			Status:     audit.StatusFailure,
			Details:    map[string]any{"error": err.Error()},
		})
	}

	return draft, nil
}

// Reject transitions a pending draft to rejected, recording the reason as
// reviewer notes.
func (s *Service) Reject(ctx context.Context, id, reason, operator string) (*models.Draft, error) {
	draft, err := s.drafts.TransitionIfPending(ctx, id, models.DraftRejected, &reason)
	if err != nil {
		metrics.ReviewActions.WithLabelValues("reject", resultLabel(err)).Inc()
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "draft_rejected",
		ResourceID: draft.ID,
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"operator": operator, "reason": reason},
	})
	metrics.ReviewActions.WithLabelValues("reject", "ok").Inc()
	return draft, nil
}

// Edit overwrites a pending draft's AI response; the draft stays in
// pending_review.
func (s *Service) Edit(ctx context.Context, id string, response models.AnalysisResult, operator string) (*models.Draft, error) {
	draft, err := s.drafts.UpdateResponseIfPending(ctx, id, response)
	if err != nil {
		metrics.ReviewActions.WithLabelValues("edit", resultLabel(err)).Inc()
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "draft_edited",
		ResourceID: draft.ID,
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"operator": operator},
	})
	metrics.ReviewActions.WithLabelValues("edit", "ok").Inc()
	return draft, nil
}
