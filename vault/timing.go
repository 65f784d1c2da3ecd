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

import "time"

// DefaultInactivityPeriod is the owner inactivity window after which the
// heir may take control
const DefaultInactivityPeriod = 30 * 24 * time.Hour

// IsInactive reports whether the owner has been inactive for at least the
// given period. The boundary instant counts as inactive.
func IsInactive(
	lastActivityTime time.Time,
	now time.Time,
	period time.Duration,
) bool {
	return !now.Before(lastActivityTime.Add(period))
}
