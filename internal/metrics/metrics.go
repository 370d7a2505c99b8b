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

// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinsSent counts check-in emails dispatched, by result.
	CheckinsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_checkins_sent_total",
		Help: "Check-in emails dispatched by the scheduler.",
	}, []string{"result"})

	// SchedulerCycles counts scheduler cycles, by outcome
	// (completed, skipped_lease, no_campaign, failed).
	SchedulerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_scheduler_cycles_total",
		Help: "Scheduler cycles by outcome.",
	}, []string{"outcome"})

	// WebhookEvents counts inbound webhook deliveries, by disposition
	// (accepted, ignored, duplicate, bad_signature, unattributed, error).
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_webhook_events_total",
		Help: "Inbound webhook deliveries by disposition.",
	}, []string{"disposition"})

	// WorkflowRuns counts workflow executions, by result (completed, failed).
	WorkflowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_workflow_runs_total",
		Help: "Workflow engine executions by result.",
	}, []string{"result"})

	// ReviewActions counts review transitions, by action (approve, reject, edit)
	// and result (ok, conflict, not_found, error).
	ReviewActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_review_actions_total",
		Help: "Review operations by action and result.",
	}, []string{"action", "result"})

	// RealtimeEvents counts change-feed notifications, by result
	// (processed, failed, malformed).
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_realtime_events_total",
		Help: "Change-feed submission events by result.",
	}, []string{"result"})
)
