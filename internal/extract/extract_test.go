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

package extract

import (
	"strings"
	"testing"
)

// TestExtract_QuotedReply verifies the common reply shape: new text above
// a quote header and quoted history below it.
func TestExtract_QuotedReply(t *testing.T) {
	raw := "My new address is 12 Oak Lane.\n\nOn Tue, Mar 3, 2026 at 9:00 AM Everkeep <checkin@everkeep.com> wrote:\n> How are things going?\n> Reply to this email to update us."

	got := Extract(raw)
	want := "My new address is 12 Oak Lane."
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

// TestExtract_OutlookHeaderBlock verifies forwarded-style header blocks
// are cut at the first marker.
func TestExtract_OutlookHeaderBlock(t *testing.T) {
	raw := "All good here, nothing changed.\n\n________________\nFrom: Everkeep <checkin@everkeep.com>\nSent: Tuesday, March 3\nTo: jane@example.com\nSubject: Your check-in\n\nHow are things going?"

	got := Extract(raw)
	want := "All good here, nothing changed."
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

// TestExtract_HTMLBody verifies tags are stripped and the minimal entity
// set is decoded.
func TestExtract_HTMLBody(t *testing.T) {
	raw := `<div dir="ltr"><p>Things are&nbsp;fine &amp; the kids say &quot;hi&quot;.</p><br></div>`

	got := Extract(raw)
	want := `Things are fine & the kids say "hi".`
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

// TestExtract_SignatureBlocks verifies trailing valedictions are truncated.
func TestExtract_SignatureBlocks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"best regards",
			"Still at the same job.\n\nBest regards,\nJane Doe\n555-0100",
			"Still at the same job.",
		},
		{
			"case insensitive",
			"Still at the same job.\n\nSINCERELY,\nJane",
			"Still at the same job.",
		},
		{
			"sent from device",
			"Quick update: sold the car.\n\nSent from my iPhone",
			"Quick update: sold the car.",
		},
		{
			"lone dash-dash line",
			"Nothing new.\n--\nJane Doe\nAcme Corp",
			"Nothing new.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.raw); got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestExtract_CollapsesBlankRuns verifies 3+ newlines collapse to exactly 2.
func TestExtract_CollapsesBlankRuns(t *testing.T) {
	got := Extract("first paragraph\n\n\n\n\nsecond paragraph")
	want := "first paragraph\n\nsecond paragraph"
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

// TestExtract_Idempotent verifies extract(extract(x)) == extract(x) across
// every input shape the other tests exercise, plus adversarial ones where
// markup resolves into markers.
func TestExtract_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain reply, nothing to strip",
		"My new address is 12 Oak Lane.\n\nOn Tue wrote:\n> old",
		`<div>Things are&nbsp;fine &amp; good</div>`,
		"Nothing new.\n--\nJane",
		"update\n\n\n\n\nmore",
		"&gt; quoted after decoding",
		"  > quoted behind leading spaces",
		"&amp;lt;b&amp;gt;double encoded&amp;lt;/b&amp;gt;",
		"a &lt; b but not a tag",
		"Thanks for everything\nJane",
		"________________\nFrom: x\n",
	}

	for _, in := range inputs {
		once := Extract(in)
		twice := Extract(once)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once: %q\ntwice: %q", in, once, twice)
		}
	}
}

// TestExtract_NoTagsSurvive verifies no complete <...> sequence is ever
// left in the output.
func TestExtract_NoTagsSurvive(t *testing.T) {
	inputs := []string{
		"<p>hello</p>",
		"<div><b>nested</b> <i>tags</i></div>",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"broken <tag without close",
		"<a<b>c>",
	}

	for _, in := range inputs {
		got := Extract(in)
		if htmlTag.MatchString(got) {
			t.Errorf("output for %q still contains a tag: %q", in, got)
		}
	}
}

// TestExtract_NeverPanics exercises Extract across junk inputs; the
// function is total by contract.
func TestExtract_NeverPanics(t *testing.T) {
	inputs := []string{
		"",
		strings.Repeat("&amp;", 500),
		strings.Repeat("<", 100) + strings.Repeat(">", 100),
		"\r\n\r\n\r\n",
		"\x00\x01 binary-ish \xff",
	}

	for _, in := range inputs {
		_ = Extract(in) // must not panic
	}
}
