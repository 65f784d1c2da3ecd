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
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/vault"
)

const (
	DepositEventType event.EventType = "ledger.deposit"
	FundEventType    event.EventType = "ledger.fund"
)

// EventTypes lists every event type published on the ledger's bus
var EventTypes = slices.Concat(
	[]event.EventType{DepositEventType, FundEventType},
	vault.EventTypes,
)

// DepositEvent is journaled when value is sent into the vault
type DepositEvent struct {
	From   common.Address `json:"from"`
	Amount uint64         `json:"amount"`
}

// FundEvent is journaled when the dev faucet credits an account
type FundEvent struct {
	Account common.Address `json:"account"`
	Amount  uint64         `json:"amount"`
}

// eventBuffer holds the events of the call in progress until its state is
// committed
type eventBuffer struct {
	events []event.Event
}

func (b *eventBuffer) Emit(evt event.Event) {
	b.events = append(b.events, evt)
}

func (b *eventBuffer) drain() []event.Event {
	ret := b.events
	b.events = nil
	return ret
}
