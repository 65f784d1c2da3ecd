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

package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/database/types"
	"github.com/blinklabs-io/bequest/vault"
)

// VaultRecord is the persisted form of a deployed vault. The address and
// inactivity period are fixed at deployment.
type VaultRecord struct {
	State            vault.State
	Address          common.Address
	InactivityPeriod time.Duration
}

type vaultStateCbor struct {
	_                struct{} `cbor:",toarray"`
	Address          []byte
	Owner            []byte
	Heir             []byte
	NewHeir          []byte
	LastActivityTime int64
	HeirActivated    bool
	InactivityPeriod int64
}

type accountCbor struct {
	_       struct{} `cbor:",toarray"`
	Balance uint64
	Nonce   uint64
}

func encodeVaultRecord(rec VaultRecord) ([]byte, error) {
	return cbor.Marshal(
		vaultStateCbor{
			Address:          rec.Address.Bytes(),
			Owner:            rec.State.Owner.Bytes(),
			Heir:             rec.State.Heir.Bytes(),
			NewHeir:          rec.State.NewHeir.Bytes(),
			LastActivityTime: rec.State.LastActivityTime.UnixNano(),
			HeirActivated:    rec.State.HeirActivated,
			InactivityPeriod: int64(rec.InactivityPeriod),
		},
	)
}

func decodeVaultRecord(data []byte) (*VaultRecord, error) {
	var tmp vaultStateCbor
	if err := cbor.Unmarshal(data, &tmp); err != nil {
		return nil, fmt.Errorf("decode vault state: %w", err)
	}
	for _, b := range [][]byte{tmp.Address, tmp.Owner, tmp.Heir, tmp.NewHeir} {
		if len(b) != common.AddressLength {
			return nil, fmt.Errorf("decode vault state: invalid address length %d", len(b))
		}
	}
	return &VaultRecord{
		Address: common.BytesToAddress(tmp.Address),
		State: vault.State{
			Owner:            common.BytesToAddress(tmp.Owner),
			Heir:             common.BytesToAddress(tmp.Heir),
			NewHeir:          common.BytesToAddress(tmp.NewHeir),
			LastActivityTime: time.Unix(0, tmp.LastActivityTime).UTC(),
			HeirActivated:    tmp.HeirActivated,
		},
		InactivityPeriod: time.Duration(tmp.InactivityPeriod),
	}, nil
}

// GetVault returns the persisted vault, or types.ErrNotFound before
// deployment
func (d *Database) GetVault(txn *Txn) (*VaultRecord, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	data, err := d.Blob().Get(txn.Blob(), []byte(types.VaultStateBlobKey))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return decodeVaultRecord(data)
}

// SetVault stores the vault record
func (d *Database) SetVault(rec VaultRecord, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.SetVault(rec, txn)
		})
	}
	data, err := encodeVaultRecord(rec)
	if err != nil {
		return err
	}
	return d.Blob().Set(txn.Blob(), []byte(types.VaultStateBlobKey), data)
}

// GetAccount returns the custody account for addr. An account that was
// never written has a zero balance and nonce.
func (d *Database) GetAccount(
	addr common.Address,
	txn *Txn,
) (custody.Account, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	data, err := d.Blob().Get(txn.Blob(), types.AccountBlobKey(addr.Bytes()))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return custody.Account{}, nil
		}
		return custody.Account{}, err
	}
	return decodeAccount(data)
}

// SetAccount stores the custody account for addr
func (d *Database) SetAccount(
	addr common.Address,
	acct custody.Account,
	txn *Txn,
) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.SetAccount(addr, acct, txn)
		})
	}
	data, err := cbor.Marshal(
		accountCbor{Balance: acct.Balance, Nonce: acct.Nonce},
	)
	if err != nil {
		return err
	}
	return d.Blob().Set(txn.Blob(), types.AccountBlobKey(addr.Bytes()), data)
}

// GetAccounts returns every stored custody account
func (d *Database) GetAccounts(txn *Txn) (custody.Snapshot, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	prefix := []byte(types.AccountBlobKeyPrefix)
	iter := d.Blob().NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	defer iter.Close()
	ret := make(custody.Snapshot)
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		item := iter.Item()
		addr := types.AccountBlobKeyAddress(item.Key())
		if addr == nil {
			continue
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		acct, err := decodeAccount(data)
		if err != nil {
			return nil, err
		}
		ret[common.BytesToAddress(addr)] = acct
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func decodeAccount(data []byte) (custody.Account, error) {
	var tmp accountCbor
	if err := cbor.Unmarshal(data, &tmp); err != nil {
		return custody.Account{}, fmt.Errorf("decode account: %w", err)
	}
	return custody.Account{Balance: tmp.Balance, Nonce: tmp.Nonce}, nil
}
