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

package vault

import (
	"testing"
	"time"
)

func TestIsInactive(t *testing.T) {
	last := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	period := 10 * time.Second
	tests := []struct {
		name     string
		now      time.Time
		expected bool
	}{
		{"at last activity", last, false},
		{"before threshold", last.Add(period - time.Nanosecond), false},
		{"at threshold", last.Add(period), true},
		{"after threshold", last.Add(period + time.Hour), true},
		{"clock behind last activity", last.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		if got := IsInactive(last, tt.now, period); got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, got)
		}
	}
}

func TestReentrancyGate(t *testing.T) {
	var g reentrancyGate
	if err := g.enter(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := g.enter(); err != ErrReentrantCall {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	g.exit()
	if err := g.enter(); err != nil {
		t.Fatalf("gate not released: %s", err)
	}
}
