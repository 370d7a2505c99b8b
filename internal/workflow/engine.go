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

// Package workflow turns a submission into a draft awaiting human review.
//
// The engine guarantees one of exactly two outcomes per submission: a
// persisted draft in pending_review, or a propagated error with matching
// failure entries in the audit log. It never retries — the caller owns
// its own failure handling.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/metrics"
	"github.com/everkeep/outreach/internal/models"
)

// Analyzer is the pluggable drafting step.
type Analyzer interface {
	Analyze(ctx context.Context, sub models.Submission, info models.AdditionalInfo) (*models.AnalysisResult, error)
}

// DraftInserter persists new drafts.
type DraftInserter interface {
	Insert(ctx context.Context, submissionID string, response models.AnalysisResult) (*models.Draft, error)
}

// Engine runs the submission-to-draft workflow.
type Engine struct {
	analyzer Analyzer
	drafts   DraftInserter
	audit    audit.Logger
}

// NewEngine creates a workflow engine.
func NewEngine(analyzer Analyzer, drafts DraftInserter, auditLog audit.Logger) *Engine {
	return &Engine{
		analyzer: analyzer,
		drafts:   drafts,
		audit:    auditLog,
	}
}

// ProcessSubmission runs one submission through analysis and persists the
// resulting draft in pending_review.
func (e *Engine) ProcessSubmission(ctx context.Context, sub models.Submission) (*models.Draft, error) {
	e.audit.Record(ctx, audit.Entry{
		Action:     "workflow_start",
		ResourceID: sub.ID,
		Status:     audit.StatusInfo,
		Details:    map[string]any{"user_id": sub.UserID, "source": sub.Source},
	})

	// Best-effort: a free-form field that fails to parse stays raw.
	info := models.ParseAdditionalInfo(sub.AdditionalInfo)

	result, err := e.analyzer.Analyze(ctx, sub, info)
	if err != nil {
		e.fail(ctx, sub.ID, fmt.Errorf("analysis step: %w", err))
		return nil, fmt.Errorf("analysis step: %w", err)
	}

	draft, err := e.drafts.Insert(ctx, sub.ID, *result)
	if err != nil {
		e.audit.Record(ctx, audit.Entry{
			Action:     "draft_save_failed",
			ResourceID: sub.ID,
			Status:     audit.StatusFailure,
			Details:    map[string]any{"error": err.Error()},
		})
		e.fail(ctx, sub.ID, err)
		return nil, fmt.Errorf("persist draft: %w", err)
	}

	e.audit.Record(ctx, audit.Entry{
		Action:     "draft_created",
		ResourceID: draft.ID,
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"submission_id": sub.ID, "risk_level": result.RiskLevel},
	})
	e.audit.Record(ctx, audit.Entry{
		Action:     "workflow_complete",
		ResourceID: draft.ID,
		Status:     audit.StatusSuccess,
	})
	metrics.WorkflowRuns.WithLabelValues("completed").Inc()

	slog.Info("workflow complete",
		"submission_id", sub.ID,
		"draft_id", draft.ID,
		"status", draft.Status,
	)
	return draft, nil
}

func (e *Engine) fail(ctx context.Context, submissionID string, err error) {
	e.audit.Record(ctx, audit.Entry{
		Action:     "workflow_failed",
		ResourceID: submissionID,
		Status:     audit.StatusFailure,
		Details:    map[string]any{"error": err.Error()},
	})
	metrics.WorkflowRuns.WithLabelValues("failed").Inc()
}
