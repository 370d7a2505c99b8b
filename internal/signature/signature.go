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

// Package signature validates HMAC-signed webhook payloads from the email
// provider. The provider signs "<timestamp>.<payload>" with a shared secret
// and sends the base64 digest as "v1,<base64>".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"strings"
)

const versionPrefix = "v1,"

// Verifier checks webhook signatures against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier. An empty secret disables verification
// entirely — local development only, and it is logged loudly so a
// misconfigured deployment cannot silently accept unsigned traffic.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		slog.Warn("WEBHOOK SIGNATURE VERIFICATION DISABLED — no webhook secret configured; all inbound payloads will be accepted unverified")
	}
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify reports whether sig is a valid "v1," signature over
// "<timestamp>.<payload>". It is total: malformed input of any kind is a
// plain false, never a panic or an error. The digest comparison is
// constant-time — ordinary equality would leak how much of a forged
// signature's prefix matched.
func (v *Verifier) Verify(payload, sig, timestamp string) bool {
	if !v.Enabled() {
		return true
	}

	if !strings.HasPrefix(sig, versionPrefix) {
		return false
	}

	provided, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sig, versionPrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp + "." + payload))
	expected := mac.Sum(nil)

	// hmac.Equal is constant-time and length-safe.
	return hmac.Equal(provided, expected)
}
