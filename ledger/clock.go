// Copyright 2026 Blink Labs Software
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

package ledger

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrInvalidAdvance = errors.New("clock can only be advanced by a positive duration")
	ErrClockOverflow  = errors.New("clock cannot be advanced past the latest storable time")
)

// MaxClockTime is the latest instant a nanosecond Unix timestamp can hold
var MaxClockTime = time.Unix(0, math.MaxInt64).UTC()

// Clock supplies the current time for each call
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock only moves when advanced. It is used in dev mode so heirs can
// be tested without waiting out the inactivity period.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time
func (c *ManualClock) Advance(d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, ErrInvalidAdvance
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.now.Add(d)
	if next.After(MaxClockTime) {
		return time.Time{}, ErrClockOverflow
	}
	c.now = next
	return c.now, nil
}
