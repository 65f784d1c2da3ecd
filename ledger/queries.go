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
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/types"
	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/vault"
)

// VaultSnapshot is a consistent view of the vault between calls
type VaultSnapshot struct {
	State            vault.State
	Address          common.Address
	Balance          uint64
	InactivityPeriod time.Duration
	EligibleAt       time.Time
	Inactive         bool
	Now              time.Time
}

// JournalEvent is an entry of the persisted event journal
type JournalEvent struct {
	Id     uint
	TxId   string
	Type   event.EventType
	Caller common.Address
	Time   time.Time
	Data   json.RawMessage
}

// Snapshot returns the committed vault state
func (ls *LedgerState) Snapshot() VaultSnapshot {
	ls.RLock()
	defer ls.RUnlock()
	now := ls.config.Clock.Now()
	return VaultSnapshot{
		State:            ls.vault.State(),
		Address:          ls.vault.Address(),
		Balance:          ls.vault.Balance(),
		InactivityPeriod: ls.vault.InactivityPeriod(),
		EligibleAt:       ls.vault.EligibleAt(),
		Inactive:         ls.vault.Inactive(now),
		Now:              now,
	}
}

// Account returns the committed balance and nonce of addr
func (ls *LedgerState) Account(addr common.Address) custody.Account {
	ls.RLock()
	defer ls.RUnlock()
	return ls.custody.Account(addr)
}

// Events returns a page of the event journal and the number of matching
// entries
func (ls *LedgerState) Events(
	query types.EventQuery,
) ([]JournalEvent, int64, error) {
	rows, total, err := ls.db.GetEvents(query)
	if err != nil {
		return nil, 0, err
	}
	ret := make([]JournalEvent, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, journalEventFromModel(row))
	}
	return ret, total, nil
}

// Submission returns the recorded outcome of a transaction
func (ls *LedgerState) Submission(txId string) (*TxResult, error) {
	sub, err := ls.db.GetSubmission(txId)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return &TxResult{
		TxId:   sub.TxId,
		Caller: common.BytesToAddress(sub.Caller),
		Op:     TxOp(sub.Op),
		Nonce:  uint64(sub.Nonce),
		Status: sub.Status,
		Error:  sub.Error,
		Time:   time.Unix(0, sub.Timestamp).UTC(),
	}, nil
}

func journalEventFromModel(row models.VaultEvent) JournalEvent {
	return JournalEvent{
		Id:     row.ID,
		TxId:   row.TxId,
		Type:   event.EventType(row.Type),
		Caller: common.BytesToAddress(row.Caller),
		Time:   time.Unix(0, row.Timestamp).UTC(),
		Data:   json.RawMessage(row.Data),
	}
}

func journalModels(
	txId string,
	caller common.Address,
	events []event.Event,
) ([]models.VaultEvent, error) {
	ret := make([]models.VaultEvent, 0, len(events))
	for _, evt := range events {
		data, err := json.Marshal(evt.Data)
		if err != nil {
			return nil, err
		}
		ret = append(
			ret,
			models.VaultEvent{
				TxId:      txId,
				Type:      string(evt.Type),
				Caller:    caller.Bytes(),
				Timestamp: evt.Timestamp.UnixNano(),
				Data:      data,
			},
		)
	}
	return ret, nil
}
