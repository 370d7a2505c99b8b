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

package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/everkeep/outreach/internal/models"
)

// TestAnalyze_RoundTrip verifies the request carries the parsed branch of
// additional_info and the structured result decodes.
func TestAnalyze_RoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %q, want /analyze", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(models.AnalysisResult{
			Summary:          "steady progress",
			SuggestedActions: []string{"review budget"},
			RiskLevel:        "low",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	sub := models.Submission{ID: "sub-1", UserID: "u1", PrimaryGoal: "retire", Source: "form"}
	info := models.ParseAdditionalInfo(`{"age": 45}`)

	result, err := c.Analyze(context.Background(), sub, info)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Summary != "steady progress" || result.RiskLevel != "low" {
		t.Errorf("result = %+v, fields lost in transit", result)
	}
	if _, ok := got["additional_info"]; !ok {
		t.Error("structured additional_info should be forwarded")
	}
	if _, ok := got["raw_info"]; ok {
		t.Error("raw_info should be omitted when parsing succeeded")
	}
}

// TestAnalyze_ServiceError verifies a non-200 becomes an error.
func TestAnalyze_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.Analyze(context.Background(), models.Submission{ID: "sub-1"}, models.AdditionalInfo{})
	if err == nil {
		t.Fatal("expected error for unavailable analysis service")
	}
}
