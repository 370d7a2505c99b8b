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

package models

import (
	"testing"
	"time"
)

// TestNextDue verifies the cadence-to-duration rule, including the weekly
// fallback for unknown cadence values.
func TestNextDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		cadence Cadence
		want    time.Duration
	}{
		{CadenceDaily, 24 * time.Hour},
		{CadenceWeekly, 7 * 24 * time.Hour},
		{CadenceBiweekly, 14 * 24 * time.Hour},
		{CadenceMonthly, 30 * 24 * time.Hour},
		{Cadence("quarterly"), 7 * 24 * time.Hour},
		{Cadence(""), 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.cadence), func(t *testing.T) {
			got := NextDue(tt.cadence, now)
			if got.Sub(now) != tt.want {
				t.Errorf("NextDue(%q) advanced by %v, want %v", tt.cadence, got.Sub(now), tt.want)
			}
		})
	}
}

// TestNextDue_AlwaysFuture verifies the schedule invariant: the next due
// timestamp is strictly after the dispatch moment for every cadence.
func TestNextDue_AlwaysFuture(t *testing.T) {
	now := time.Now().UTC()
	for _, c := range []Cadence{CadenceDaily, CadenceWeekly, CadenceBiweekly, CadenceMonthly, "bogus"} {
		if !NextDue(c, now).After(now) {
			t.Errorf("NextDue(%q) is not in the future", c)
		}
	}
}

// TestParseAdditionalInfo verifies best-effort structured parsing.
func TestParseAdditionalInfo(t *testing.T) {
	info := ParseAdditionalInfo(`{"dependents": 2, "state": "OR"}`)
	if info.Structured == nil {
		t.Fatal("expected structured branch for valid JSON object")
	}
	if info.Structured["state"] != "OR" {
		t.Errorf("state = %v, want OR", info.Structured["state"])
	}
	if info.Raw != "" {
		t.Errorf("raw should be empty when structured, got %q", info.Raw)
	}

	info = ParseAdditionalInfo("just some notes, not JSON")
	if info.Structured != nil {
		t.Error("expected raw branch for plain text")
	}
	if info.Raw != "just some notes, not JSON" {
		t.Errorf("raw = %q", info.Raw)
	}

	// JSON scalars are not structured data — keep the raw string.
	info = ParseAdditionalInfo(`"quoted"`)
	if info.Structured != nil {
		t.Error("expected raw branch for a JSON scalar")
	}
}
