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

// Package lease provides a Redis-backed exclusive lease. The scheduler
// takes one per cycle so a slow cycle is skipped by the next tick instead
// of run concurrently.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "outreach:lease:"

// Lease is a named exclusive lock with a TTL safety net: if the holder
// dies without releasing, the lock expires on its own.
type Lease struct {
	rdb  *redis.Client
	name string
	ttl  time.Duration
}

// New creates a lease with the given name and TTL.
func New(rdb *redis.Client, name string, ttl time.Duration) *Lease {
	return &Lease{rdb: rdb, name: name, ttl: ttl}
}

// Acquire attempts to take the lease. It returns false if another holder
// currently has it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, keyPrefix+l.name, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease acquire %s: %w", l.name, err)
	}
	return ok, nil
}

// Release gives the lease back early.
func (l *Lease) Release(ctx context.Context) error {
	if err := l.rdb.Del(ctx, keyPrefix+l.name).Err(); err != nil {
		return fmt.Errorf("lease release %s: %w", l.name, err)
	}
	return nil
}
