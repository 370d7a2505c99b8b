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

package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestSend_PostsToProvider verifies the request shape: endpoint, auth
// header, and the default sender fill-in.
func TestSend_PostsToProvider(t *testing.T) {
	var got Message
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "key-123", "checkin@everkeep.example")
	err := c.Send(context.Background(), Message{
		To:      "jane@x.com",
		Subject: "Your check-in",
		Text:    "How are things?",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotPath != "/emails" {
		t.Errorf("path = %q, want /emails", gotPath)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("auth header = %q, want Bearer key-123", gotAuth)
	}
	if got.From != "checkin@everkeep.example" {
		t.Errorf("from = %q, want the configured default sender", got.From)
	}
	if got.To != "jane@x.com" || got.Subject != "Your check-in" {
		t.Errorf("message = %+v, fields lost in transit", got)
	}
}

// TestSend_ProviderErrorSurfaces verifies non-2xx responses become errors
// carrying the provider's diagnostic.
func TestSend_ProviderErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "key-123", "checkin@everkeep.example")
	err := c.Send(context.Background(), Message{To: "nope"})
	if err == nil {
		t.Fatal("expected error for provider rejection")
	}
}

// TestSend_NoAuthHeaderWithoutKey verifies the static header is omitted
// when the transport handles authentication itself.
func TestSend_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "", "checkin@everkeep.example")
	if err := c.Send(context.Background(), Message{To: "jane@x.com"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("auth header = %q, want none", gotAuth)
	}
}
