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

// Package analysis is the client for the pluggable drafting step: it hands
// a submission to the analysis service and gets back a structured result.
// The call may be slow; the caller's context bounds it.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/everkeep/outreach/internal/models"
)

// request is the analysis service's input shape. The parsed branch of
// additional_info is sent when parsing succeeded, the raw string otherwise.
type request struct {
	SubmissionID   string         `json:"submission_id"`
	UserID         string         `json:"user_id"`
	PrimaryGoal    string         `json:"primary_goal"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
	RawInfo        string         `json:"raw_info,omitempty"`
	Source         string         `json:"source"`
}

// Client calls the analysis service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an analysis client. The http.Client is injected so
// tests and callers control timeouts.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Analyze produces a structured draft result for a submission.
func (c *Client) Analyze(ctx context.Context, sub models.Submission, info models.AdditionalInfo) (*models.AnalysisResult, error) {
	req := request{
		SubmissionID:   sub.ID,
		UserID:         sub.UserID,
		PrimaryGoal:    sub.PrimaryGoal,
		AdditionalInfo: info.Structured,
		RawInfo:        info.Raw,
		Source:         sub.Source,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analysis call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analysis service returned HTTP %d: %s", resp.StatusCode, detail)
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &result, nil
}
