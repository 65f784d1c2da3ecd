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

package api

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/database/types"
	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/ledger"
)

// VaultNode is the subset of the ledger the API serves. *ledger.LedgerState
// satisfies it.
type VaultNode interface {
	Snapshot() ledger.VaultSnapshot
	Account(addr common.Address) custody.Account
	Events(query types.EventQuery) ([]ledger.JournalEvent, int64, error)
	Submission(txId string) (*ledger.TxResult, error)
	Submit(ctx context.Context, tx ledger.Tx) (*ledger.Receipt, error)
	Fund(ctx context.Context, addr common.Address, amount uint64) (uint64, error)
	AdvanceClock(d time.Duration) (time.Time, error)
	DevMode() bool
	EventBus() *event.EventBus
}

var _ VaultNode = (*ledger.LedgerState)(nil)
