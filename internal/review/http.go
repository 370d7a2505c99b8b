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

package review

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/everkeep/outreach/internal/apperr"
	"github.com/everkeep/outreach/internal/auth"
	"github.com/everkeep/outreach/internal/models"
)

// draftJSON is the wire shape of a draft.
type draftJSON struct {
	ID            string                `json:"id"`
	SubmissionID  string                `json:"submission_id"`
	Response      models.AnalysisResult `json:"ai_response"`
	Status        string                `json:"status"`
	ReviewerNotes *string               `json:"reviewer_notes,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

func toJSON(d *models.Draft) draftJSON {
	return draftJSON{
		ID:            d.ID,
		SubmissionID:  d.SubmissionID,
		Response:      d.Response,
		Status:        d.Status,
		ReviewerNotes: d.ReviewerNotes,
		CreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Register mounts the review endpoints on mux behind the operator JWT
// middleware.
func Register(mux *http.ServeMux, svc *Service, mw *auth.Middleware) {
	mux.HandleFunc("GET /drafts", mw.Wrap(svc.handleList))
	mux.HandleFunc("POST /drafts/{id}/approve", mw.Wrap(svc.handleApprove))
	mux.HandleFunc("POST /drafts/{id}/reject", mw.Wrap(svc.handleReject))
	mux.HandleFunc("POST /drafts/{id}/edit", mw.Wrap(svc.handleEdit))
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeErr(w, err)
		return
	}

	out := make([]draftJSON, 0, len(drafts))
	for i := range drafts {
		out = append(out, toJSON(&drafts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": out})
}

func (s *Service) handleApprove(w http.ResponseWriter, r *http.Request) {
	draft, err := s.Approve(r.Context(), r.PathValue("id"), auth.Operator(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(draft))
}

func (s *Service) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	draft, err := s.Reject(r.Context(), r.PathValue("id"), body.Reason, auth.Operator(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(draft))
}

func (s *Service) handleEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AIResponse models.AnalysisResult `json:"ai_response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	draft, err := s.Edit(r.Context(), r.PathValue("id"), body.AIResponse, auth.Operator(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(draft))
}

// writeErr maps the error taxonomy to status codes. Anything outside the
// taxonomy is a 500 with a generic message; internal detail stays in the
// server log.
func writeErr(w http.ResponseWriter, err error) {
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nf.Error()})
		return
	}

	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  conflict.Error(),
			"status": conflict.Status,
		})
		return
	}

	slog.Error("review operation failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func resultLabel(err error) string {
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		return "not_found"
	}
	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		return "conflict"
	}
	return "error"
}
