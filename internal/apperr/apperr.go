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

// Package apperr defines the error taxonomy shared by the HTTP-facing
// entry points. Handlers match these with errors.As and translate them
// to a bounded set of status codes; internal detail never reaches a
// response body.
package apperr

import "fmt"

// AuthenticationError means the webhook signature was missing or invalid.
// Never retried.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// AttributionError means an inbound message could not be attributed to a
// verified user. The message is rejected, not stored.
type AttributionError struct {
	Sender string
}

func (e *AttributionError) Error() string {
	return fmt.Sprintf("sender %s is not a verified user", e.Sender)
}

// NotFoundError means the referenced resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError means a review transition was attempted on a draft that is
// no longer pending. Status carries the draft's actual current status for
// caller display.
type ConflictError struct {
	Status string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("draft is not pending review (status: %s)", e.Status)
}
