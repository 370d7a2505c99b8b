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

// Package webhook handles inbound email events from the transactional
// provider. When a user replies to their check-in, the provider POSTs the
// parsed message here. The handler authenticates the payload, attributes
// it to a verified user, stores the cleaned reply, and hands it to the
// workflow engine for drafting.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strings"

	"github.com/everkeep/outreach/internal/apperr"
	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/extract"
	"github.com/everkeep/outreach/internal/metrics"
	"github.com/everkeep/outreach/internal/models"
	"github.com/everkeep/outreach/internal/signature"
)

// Provider signature headers.
const (
	headerID        = "webhook-id"
	headerTimestamp = "webhook-timestamp"
	headerSignature = "webhook-signature"
)

// emailEvent is the provider's payload shape.
type emailEvent struct {
	Type string `json:"type"`
	Data struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		Text    string   `json:"text"`
		HTML    string   `json:"html"`
	} `json:"data"`
}

// Workflow is the drafting entry point the handler feeds stored replies to.
type Workflow interface {
	ProcessSubmission(ctx context.Context, sub models.Submission) (*models.Draft, error)
}

// UserDirectory looks up users by email for sender attribution.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.UserRecord, error)
}

// CampaignSource resolves the currently active prompt for reply tagging.
type CampaignSource interface {
	Current(ctx context.Context) (*models.Campaign, error)
}

// ReplySink persists accepted replies.
type ReplySink interface {
	Insert(ctx context.Context, userID string, campaignID *string, raw, stripped string) (*models.Reply, error)
}

// SubmissionSink persists the reply-sourced submission fed to the workflow.
type SubmissionSink interface {
	Insert(ctx context.Context, userID, primaryGoal, additionalInfo, source string) (*models.Submission, error)
}

// DeliveryFilter deduplicates provider redeliveries.
type DeliveryFilter interface {
	IsNew(ctx context.Context, deliveryID string) (bool, error)
}

// Handler processes inbound email webhooks.
type Handler struct {
	verifier    *signature.Verifier
	filter      DeliveryFilter
	users       UserDirectory
	campaigns   CampaignSource
	replies     ReplySink
	submissions SubmissionSink
	workflow    Workflow
	audit       audit.Logger
}

// NewHandler creates an inbound email handler.
func NewHandler(
	verifier *signature.Verifier,
	filter DeliveryFilter,
	users UserDirectory,
	campaigns CampaignSource,
	replies ReplySink,
	submissions SubmissionSink,
	workflow Workflow,
	auditLog audit.Logger,
) *Handler {
	return &Handler{
		verifier:    verifier,
		filter:      filter,
		users:       users,
		campaigns:   campaigns,
		replies:     replies,
		submissions: submissions,
		workflow:    workflow,
		audit:       auditLog,
	}
}

// ServeEmail handles POST /webhooks/email.
func (h *Handler) ServeEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	// Authentication comes before everything else, including parsing.
	if !h.verifier.Verify(string(body), r.Header.Get(headerSignature), r.Header.Get(headerTimestamp)) {
		authErr := &apperr.AuthenticationError{Reason: "signature mismatch"}
		slog.Warn("webhook signature verification failed", "delivery_id", r.Header.Get(headerID))
		metrics.WebhookEvents.WithLabelValues("bad_signature").Inc()
		writeError(w, http.StatusUnauthorized, authErr.Error())
		return
	}

	// Providers redeliver on timeouts. Dedup is best-effort and fails
	// open: replaying a reply is recoverable, dropping one is not.
	if deliveryID := r.Header.Get(headerID); deliveryID != "" && h.filter != nil {
		isNew, err := h.filter.IsNew(r.Context(), deliveryID)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Info("skipping duplicate delivery", "delivery_id", deliveryID)
			metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
			writeJSON(w, http.StatusOK, map[string]any{"received": true})
			return
		}
	}

	var event emailEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	// Everything that is not an inbound email is acknowledged and dropped.
	if event.Type != "email.received" {
		slog.Debug("ignoring event", "type", event.Type)
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	reply, err := h.ingest(r.Context(), event)
	if err != nil {
		var attr *apperr.AttributionError
		if errors.As(err, &attr) {
			slog.Warn("inbound email could not be attributed", "sender", attr.Sender)
			metrics.WebhookEvents.WithLabelValues("unattributed").Inc()
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		slog.Error("inbound email processing failed", "error", err)
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, "could not process event")
		return
	}

	metrics.WebhookEvents.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "reply": reply})
}

// ingest runs the attributed part of the pipeline: sender lookup, content
// extraction, reply persistence, and the drafting workflow.
func (h *Handler) ingest(ctx context.Context, event emailEvent) (*models.Reply, error) {
	sender, err := parseSender(event.Data.From)
	if err != nil {
		return nil, &apperr.AttributionError{Sender: event.Data.From}
	}

	user, err := h.users.GetByEmail(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("look up sender: %w", err)
	}
	if user == nil || !user.Verified {
		return nil, &apperr.AttributionError{Sender: sender}
	}

	// Plain text wins over HTML when both are present.
	raw := event.Data.Text
	if raw == "" {
		raw = event.Data.HTML
	}
	stripped := extract.Extract(raw)

	// A missing campaign is tolerated here, unlike the scheduler: the
	// reply still happened and must be kept.
	var campaignID *string
	if campaign, err := h.campaigns.Current(ctx); err != nil {
		slog.Warn("campaign lookup failed, storing reply untagged", "error", err)
	} else if campaign != nil {
		campaignID = &campaign.ID
	}

	reply, err := h.replies.Insert(ctx, user.ID, campaignID, raw, stripped)
	if err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}

	h.audit.Record(ctx, audit.Entry{
		Action:     "reply_received",
		ResourceID: reply.ID,
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"user_id": user.ID},
	})

	// The reply is already safely stored; a drafting failure past this
	// point is audited but must not fail the delivery, or the provider
	// would redeliver a reply we have.
	h.draft(ctx, user.ID, reply)

	return reply, nil
}

// draft feeds a stored reply into the workflow engine as a reply-sourced
// submission.
func (h *Handler) draft(ctx context.Context, userID string, reply *models.Reply) {
	sub, err := h.submissions.Insert(ctx, userID, "", reply.ContentStripped, models.SubmissionSourceReply)
	if err != nil {
		slog.Error("submission insert for reply failed", "reply_id", reply.ID, "error", err)
		h.audit.Record(ctx, audit.Entry{
			Action:     "reply_workflow_failed",
			ResourceID: reply.ID,
			Status:     audit.StatusFailure,
			Details:    map[string]any{"error": err.Error()},
		})
		return
	}

	if _, err := h.workflow.ProcessSubmission(ctx, *sub); err != nil {
		slog.Error("workflow failed for reply", "reply_id", reply.ID, "error", err)
		h.audit.Record(ctx, audit.Entry{
			Action:     "reply_workflow_failed",
			ResourceID: reply.ID,
			Status:     audit.StatusFailure,
			Details:    map[string]any{"error": err.Error()},
		})
	}
}

// parseSender accepts either a bare address or a "Display Name <addr>"
// form and returns the lower-cased address.
func parseSender(from string) (string, error) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		// A bare address without display name still parses above, so a
		// failure here means the field is genuinely malformed.
		return "", fmt.Errorf("parse sender %q: %w", from, err)
	}
	return strings.ToLower(addr.Address), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/email", handler.ServeEmail)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, nil
}
