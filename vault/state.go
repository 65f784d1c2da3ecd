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
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Principal identifies a caller, owner, heir or custody account
type Principal = common.Address

// NoPrincipal is the "unset" sentinel for Heir and NewHeir
var NoPrincipal = Principal{}

// State is the persistent aggregate owned by a Vault
type State struct {
	Owner            Principal
	Heir             Principal
	NewHeir          Principal
	LastActivityTime time.Time
	HeirActivated    bool
}

// HasHeir reports whether an heir has been designated
func (s State) HasHeir() bool {
	return s.Heir != NoPrincipal
}

// HasNewHeir reports whether the heir has staged a successor
func (s State) HasNewHeir() bool {
	return s.NewHeir != NoPrincipal
}

// EligibleAt returns the instant from which the heir may activate succession
func (s State) EligibleAt(period time.Duration) time.Time {
	return s.LastActivityTime.Add(period)
}

// Call carries the implicit inputs supplied by the host with every invocation
type Call struct {
	Caller Principal
	Time   time.Time
}

// NewCall is a convenience constructor
func NewCall(caller Principal, now time.Time) Call {
	return Call{Caller: caller, Time: now}
}
