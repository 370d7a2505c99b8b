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

// Package extract turns a raw email body — plain text or HTML, with quoted
// history and signature blocks — into the clean reply text the sender
// actually typed.
//
// Extract is total and idempotent: it never fails, and running it on its
// own output returns the same string. That second guarantee is why markup
// is resolved to a fixpoint before quote markers are searched, and why
// each marker cuts to end-of-string instead of deleting single lines — a
// marker that survives one pass would change the result of the next.
package extract

import (
	"regexp"
	"strings"
)

// quoteMarkers locate where quoted reply history begins. Each pattern is
// applied once: its first occurrence truncates the body from there to the
// end. Patterns are line-anchored so prose containing e.g. "from:" mid-
// sentence is untouched.
var quoteMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)^[ \t]*On .*wrote:`),
	regexp.MustCompile(`(?mi)^[ \t]*From:[ \t]`),
	regexp.MustCompile(`(?mi)^[ \t]*Sent:[ \t]`),
	regexp.MustCompile(`(?mi)^[ \t]*To:[ \t]`),
	regexp.MustCompile(`(?mi)^[ \t]*Subject:[ \t]`),
	regexp.MustCompile(`(?m)^[ \t]*-{3,}[ \t]*$`),
	regexp.MustCompile(`(?m)^[ \t]*_{5,}[ \t]*$`),
	regexp.MustCompile(`(?m)^[ \t]*>`),
}

// valediction matches trailing signature blocks: a common sign-off or a
// lone "--" line, case-insensitive, consuming everything to end-of-string.
var valediction = regexp.MustCompile(
	`(?is)(?:^|\n)[ \t]*(?:best regards|sincerely|thanks|regards|sent from |--[ \t]*(?:\n|$)).*$`)

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	manyBlanks = regexp.MustCompile(`\n{3,}`)
)

// entities is the minimal decode set the provider emits.
var entities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// Extract produces the clean reply text from a raw email body.
func Extract(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")

	// Resolve markup before marker search so quoting hidden behind tags
	// or entities ("&gt; quoted") is visible to this pass. Decode and
	// strip loop together until stable: stripping can splice fragments
	// into a new entity, decoding can materialise a new tag.
	for {
		next := stripTags(decodeEntities(s))
		if next == s {
			break
		}
		s = next
	}

	s = strings.TrimSpace(s)

	for _, marker := range quoteMarkers {
		if loc := marker.FindStringIndex(s); loc != nil {
			s = s[:loc[0]]
		}
	}

	if loc := valediction.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}

	s = manyBlanks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func decodeEntities(s string) string {
	for {
		next := entities.Replace(s)
		if next == s {
			return s
		}
		s = next
	}
}

// stripTags removes every complete <...> sequence, looping because a
// removal can butt two fragments together into a new tag.
func stripTags(s string) string {
	for {
		next := htmlTag.ReplaceAllString(s, "")
		if next == s {
			return s
		}
		s = next
	}
}
