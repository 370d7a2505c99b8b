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

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/everkeep/outreach/internal/audit"
	"github.com/everkeep/outreach/internal/models"
	"github.com/everkeep/outreach/internal/signature"
)

const testSecret = "whsec_test"

func sign(payload, ts string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(ts + "." + payload))
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type memAudit struct {
	entries []audit.Entry
}

func (m *memAudit) Record(_ context.Context, e audit.Entry) {
	m.entries = append(m.entries, e)
}

type fakeUsers struct {
	byEmail map[string]*models.UserRecord
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.UserRecord, error) {
	return f.byEmail[email], nil
}

type fakeCampaigns struct {
	campaign *models.Campaign
}

func (f *fakeCampaigns) Current(_ context.Context) (*models.Campaign, error) {
	return f.campaign, nil
}

type fakeReplies struct {
	stored []models.Reply
}

func (f *fakeReplies) Insert(_ context.Context, userID string, campaignID *string, raw, stripped string) (*models.Reply, error) {
	r := models.Reply{
		ID:              "reply-1",
		UserID:          userID,
		CampaignID:      campaignID,
		EmailContent:    raw,
		ContentStripped: stripped,
		ReceivedAt:      time.Now(),
	}
	f.stored = append(f.stored, r)
	return &r, nil
}

type fakeSubmissions struct {
	stored []models.Submission
}

func (f *fakeSubmissions) Insert(_ context.Context, userID, primaryGoal, additionalInfo, source string) (*models.Submission, error) {
	s := models.Submission{
		ID:             "sub-1",
		UserID:         userID,
		PrimaryGoal:    primaryGoal,
		AdditionalInfo: additionalInfo,
		Source:         source,
	}
	f.stored = append(f.stored, s)
	return &s, nil
}

type fakeWorkflow struct {
	processed []models.Submission
}

func (f *fakeWorkflow) ProcessSubmission(_ context.Context, sub models.Submission) (*models.Draft, error) {
	f.processed = append(f.processed, sub)
	return &models.Draft{ID: "draft-1", SubmissionID: sub.ID, Status: models.DraftPendingReview}, nil
}

type fakeFilter struct {
	seen map[string]bool
}

func (f *fakeFilter) IsNew(_ context.Context, deliveryID string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[deliveryID] {
		return false, nil
	}
	f.seen[deliveryID] = true
	return true, nil
}

type fixture struct {
	handler     *Handler
	users       *fakeUsers
	replies     *fakeReplies
	submissions *fakeSubmissions
	workflow    *fakeWorkflow
}

func newFixture() *fixture {
	users := &fakeUsers{byEmail: map[string]*models.UserRecord{
		"jane@x.com": {ID: "u1", Email: "jane@x.com", Verified: true, Cadence: models.CadenceWeekly},
		"bob@x.com":  {ID: "u2", Email: "bob@x.com", Verified: false},
	}}
	replies := &fakeReplies{}
	submissions := &fakeSubmissions{}
	workflow := &fakeWorkflow{}

	h := NewHandler(
		signature.NewVerifier(testSecret),
		&fakeFilter{},
		users,
		&fakeCampaigns{campaign: &models.Campaign{ID: "c1", Prompt: "How are things?", IsActive: true}},
		replies,
		submissions,
		workflow,
		&memAudit{},
	)
	return &fixture{handler: h, users: users, replies: replies, submissions: submissions, workflow: workflow}
}

func post(t *testing.T, h *Handler, payload string, signed bool, deliveryID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(payload))
	ts := "1709300000"
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerID, deliveryID)
	if signed {
		req.Header.Set(headerSignature, sign(payload, ts))
	} else {
		req.Header.Set(headerSignature, "v1,Zm9yZ2VkCg==")
	}

	rec := httptest.NewRecorder()
	h.ServeEmail(rec, req)
	return rec
}

// TestServeEmail_StoresVerifiedReply is the happy path: a signed
// email.received event from a verified sender stores a cleaned reply and
// feeds it to the workflow.
func TestServeEmail_StoresVerifiedReply(t *testing.T) {
	f := newFixture()

	payload := `{"type":"email.received","data":{"from":"Jane <jane@x.com>","to":["checkin@everkeep.example"],"subject":"Re: Your check-in","text":"All good here!\n\nOn Tue wrote:\n> How are things going?"}}`
	rec := post(t, f.handler, payload, true, "dlv-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}

	var resp struct {
		Received bool          `json:"received"`
		Reply    *models.Reply `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received {
		t.Error("response should acknowledge receipt")
	}
	if resp.Reply == nil {
		t.Fatal("response should include the stored reply")
	}
	if resp.Reply.ContentStripped != "All good here!" {
		t.Errorf("stripped content = %q, want %q", resp.Reply.ContentStripped, "All good here!")
	}
	if resp.Reply.CampaignID == nil || *resp.Reply.CampaignID != "c1" {
		t.Error("reply should be tagged with the active campaign")
	}

	if len(f.workflow.processed) != 1 {
		t.Fatalf("workflow processed %d submissions, want 1", len(f.workflow.processed))
	}
	if f.workflow.processed[0].Source != models.SubmissionSourceReply {
		t.Errorf("submission source = %q, want %q", f.workflow.processed[0].Source, models.SubmissionSourceReply)
	}
}

// TestServeEmail_IgnoresOtherEventTypes verifies non-received events are
// acknowledged without storing anything.
func TestServeEmail_IgnoresOtherEventTypes(t *testing.T) {
	f := newFixture()

	payload := `{"type":"email.bounced","data":{"from":"jane@x.com"}}`
	rec := post(t, f.handler, payload, true, "dlv-2")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["received"] != true {
		t.Error("ignored events still acknowledge receipt")
	}
	if _, ok := resp["reply"]; ok {
		t.Error("ignored events must not include a reply")
	}
	if len(f.replies.stored) != 0 {
		t.Errorf("stored %d replies, want 0", len(f.replies.stored))
	}
}

// TestServeEmail_RejectsBadSignature verifies authentication happens
// before any processing.
func TestServeEmail_RejectsBadSignature(t *testing.T) {
	f := newFixture()

	payload := `{"type":"email.received","data":{"from":"jane@x.com","text":"hi"}}`
	rec := post(t, f.handler, payload, false, "dlv-3")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(f.replies.stored) != 0 {
		t.Error("unauthenticated payloads must not be stored")
	}
}

// TestServeEmail_RejectsUnknownSender verifies attribution failure is an
// explicit rejection, not a silent drop.
func TestServeEmail_RejectsUnknownSender(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name string
		from string
	}{
		{"unknown address", "stranger@elsewhere.com"},
		{"unverified user", "bob@x.com"},
		{"malformed from", "<<<not an address"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(map[string]any{
				"type": "email.received",
				"data": map[string]any{"from": tt.from, "text": "hi"},
			})
			rec := post(t, f.handler, string(data), true, "dlv-reject-"+string(rune('a'+i)))

			if rec.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rec.Code)
			}
			if len(f.replies.stored) != 0 {
				t.Error("unattributed messages must not be stored")
			}
		})
	}
}

// TestServeEmail_PrefersTextOverHTML verifies text is used when both
// bodies are present, and HTML is stripped when it is the only body.
func TestServeEmail_PrefersTextOverHTML(t *testing.T) {
	f := newFixture()

	payload := `{"type":"email.received","data":{"from":"jane@x.com","text":"plain wins","html":"<p>html loses</p>"}}`
	rec := post(t, f.handler, payload, true, "dlv-4")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := f.replies.stored[0].ContentStripped; got != "plain wins" {
		t.Errorf("stripped content = %q, want %q", got, "plain wins")
	}

	payload = `{"type":"email.received","data":{"from":"jane@x.com","html":"<p>only html</p>"}}`
	rec = post(t, f.handler, payload, true, "dlv-5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := f.replies.stored[1].ContentStripped; got != "only html" {
		t.Errorf("stripped content = %q, want %q", got, "only html")
	}
}

// TestServeEmail_DuplicateDeliverySkipped verifies a redelivered delivery
// ID is acknowledged without creating a second reply.
func TestServeEmail_DuplicateDeliverySkipped(t *testing.T) {
	f := newFixture()

	payload := `{"type":"email.received","data":{"from":"jane@x.com","text":"hello"}}`
	if rec := post(t, f.handler, payload, true, "dlv-same"); rec.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d, want 200", rec.Code)
	}
	if rec := post(t, f.handler, payload, true, "dlv-same"); rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", rec.Code)
	}
	if len(f.replies.stored) != 1 {
		t.Errorf("stored %d replies, want 1", len(f.replies.stored))
	}
}

// TestServeEmail_MissingCampaignTolerated verifies a reply is still stored
// untagged when no campaign is active.
func TestServeEmail_MissingCampaignTolerated(t *testing.T) {
	f := newFixture()
	f.handler.campaigns = &fakeCampaigns{campaign: nil}

	payload := `{"type":"email.received","data":{"from":"jane@x.com","text":"still here"}}`
	rec := post(t, f.handler, payload, true, "dlv-6")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(f.replies.stored) != 1 {
		t.Fatalf("stored %d replies, want 1", len(f.replies.stored))
	}
	if f.replies.stored[0].CampaignID != nil {
		t.Error("reply should be untagged when no campaign is active")
	}
}
