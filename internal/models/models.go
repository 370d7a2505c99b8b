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

// Package models defines the data structures shared across the outreach service.
package models

import (
	"encoding/json"
	"time"
)

// Cadence is how often a user receives a check-in prompt.
type Cadence string

const (
	CadenceDaily    Cadence = "daily"
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
)

// NextDue computes the next check-in timestamp for a cadence, counted from
// the moment of the current dispatch. An unrecognised cadence falls back to
// weekly rather than stalling the user's schedule.
func NextDue(c Cadence, now time.Time) time.Time {
	switch c {
	case CadenceDaily:
		return now.Add(24 * time.Hour)
	case CadenceWeekly:
		return now.Add(7 * 24 * time.Hour)
	case CadenceBiweekly:
		return now.Add(14 * 24 * time.Hour)
	case CadenceMonthly:
		return now.Add(30 * 24 * time.Hour)
	default:
		return now.Add(7 * 24 * time.Hour)
	}
}

// UserRecord represents a registered user and their check-in schedule.
// Email is stored case-normalised. The verification token doubles as a
// bearer credential for unauthenticated form resumption and is cleared
// the moment the account is verified.
type UserRecord struct {
	ID                string
	Email             string
	Verified          bool
	VerificationToken string
	Cadence           Cadence
	NextCheckinDue    time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Campaign is an outreach prompt. The "current" campaign is the
// most-recently-created active one; ties break on id so selection is
// deterministic even if two campaigns share a creation timestamp.
type Campaign struct {
	ID        string
	Prompt    string
	IsActive  bool
	CreatedAt time.Time
}

// Reply is a stored inbound message. Immutable once written.
type Reply struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	CampaignID      *string   `json:"campaign_id"`
	EmailContent    string    `json:"email_content"`
	ContentStripped string    `json:"email_content_stripped"`
	ReceivedAt      time.Time `json:"received_at"`
}

// Submission source values.
const (
	SubmissionSourceForm  = "form"
	SubmissionSourceReply = "reply"
)

// Submission is a triggering payload for the workflow engine: either a
// stored reply or a form record inserted by an external collaborator.
// AdditionalInfo may be a JSON-encoded string; parsing it is best-effort.
type Submission struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	PrimaryGoal    string    `json:"primary_goal"`
	AdditionalInfo string    `json:"additional_info"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// AdditionalInfo is the tagged result of best-effort parsing of a
// submission's free-form field. Exactly one branch is meaningful:
// Structured when the raw string held a JSON object, Raw otherwise.
type AdditionalInfo struct {
	Structured map[string]any
	Raw        string
}

// ParseAdditionalInfo opportunistically decodes a free-form field.
// Parse failure is tolerated, never an error — the raw string is kept.
func ParseAdditionalInfo(raw string) AdditionalInfo {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err == nil && m != nil {
		return AdditionalInfo{Structured: m}
	}
	return AdditionalInfo{Raw: raw}
}

// Draft status values. A draft only ever leaves pending_review once.
const (
	DraftPendingReview = "pending_review"
	DraftSent          = "sent"
	DraftRejected      = "rejected"
)

// AnalysisResult is the structured output of the pluggable analysis step.
type AnalysisResult struct {
	Summary          string   `json:"summary"`
	SuggestedActions []string `json:"suggested_actions"`
	RiskLevel        string   `json:"risk_level"`
}

// Draft is an AI-drafted response awaiting human review.
type Draft struct {
	ID            string
	SubmissionID  string
	Response      AnalysisResult
	Status        string
	ReviewerNotes *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
