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

	"github.com/blinklabs-io/bequest/event"
)

const (
	HeirSetEventType             event.EventType = "vault.heir-set"
	ActivityResetEventType       event.EventType = "vault.activity-reset"
	HeirChangedEventType         event.EventType = "vault.heir-changed"
	WithdrawalEventType          event.EventType = "vault.withdrawal"
	SuccessionActivatedEventType event.EventType = "vault.succession-activated"
	NewHeirDesignatedEventType   event.EventType = "vault.new-heir-designated"
)

// EventTypes lists every event type a Vault can emit
var EventTypes = []event.EventType{
	HeirSetEventType,
	ActivityResetEventType,
	HeirChangedEventType,
	WithdrawalEventType,
	SuccessionActivatedEventType,
	NewHeirDesignatedEventType,
}

type HeirSetEvent struct {
	Previous Principal `json:"previous"`
	New      Principal `json:"new"`
}

type ActivityResetEvent struct {
	Time time.Time `json:"time"`
}

type HeirChangedEvent struct {
	Old Principal `json:"old"`
	New Principal `json:"new"`
}

type WithdrawalEvent struct {
	Amount uint64 `json:"amount"`
}

type SuccessionActivatedEvent struct {
	Principal Principal `json:"principal"`
}

type NewHeirDesignatedEvent struct {
	Candidate Principal `json:"candidate"`
}

// Emitter receives the notifications raised by successful operations
type Emitter interface {
	Emit(event.Event)
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(event.Event)

func (f EmitterFunc) Emit(evt event.Event) {
	f(evt)
}

type discardEmitter struct{}

func (discardEmitter) Emit(event.Event) {}
