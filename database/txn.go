// Copyright 2025 Blink Labs Software
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
	"sync"
	"time"

	"github.com/blinklabs-io/bequest/database/types"
)

const (
	commitResultCommitted = "committed"
	commitResultReadOnly  = "read_only"
	commitResultFailed    = "failed"
	commitResultPartial   = "partial"
)

// ErrPartialCommit reports a torn commit: the blob store holds the changes
// but the metadata commit that followed failed
var ErrPartialCommit = errors.New("partial commit")

// Txn is the unit of work of one vault call. It pairs a blob transaction,
// holding vault state and balances, with a metadata transaction, holding the
// journal and submission record, and commits both under a shared commit
// timestamp. A read-only Txn holds a blob snapshot only.
type Txn struct {
	db          *Database
	blobTxn     types.Txn
	metadataTxn types.Txn
	lock        sync.Mutex
	finished    bool
	readWrite   bool
}

func NewTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if bs := db.Blob(); bs != nil {
		t.blobTxn = bs.NewTransaction(readWrite)
	}
	if ms := db.Metadata(); ms != nil && readWrite {
		t.metadataTxn = ms.Transaction()
	}
	return t
}

// Metadata returns the metadata transaction handle, nil when read-only
func (t *Txn) Metadata() types.Txn {
	return t.metadataTxn
}

// Blob returns the blob transaction handle
func (t *Txn) Blob() types.Txn {
	return t.blobTxn
}

// Do runs fn inside the transaction, committing if it succeeds and rolling
// back otherwise
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				rbErr,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	if !t.readWrite {
		t.db.metrics.observeCommit(commitResultReadOnly, 0)
		return t.rollback()
	}
	start := time.Now()
	result, err := t.commit()
	t.finished = true
	t.db.metrics.observeCommit(result, time.Since(start))
	return err
}

// commit stamps and commits both stores. The blob store goes first, so a
// failure there leaves nothing committed, while a metadata failure after it
// leaves a torn commit that the timestamp check reports at the next open.
func (t *Txn) commit() (string, error) {
	if t.blobTxn == nil && t.metadataTxn == nil {
		return commitResultFailed, types.ErrNoStoreAvailable
	}
	if t.blobTxn != nil && t.metadataTxn != nil {
		if err := t.db.updateCommitTimestamp(t, t.db.nextCommitTimestamp()); err != nil {
			t.abort()
			return commitResultFailed, fmt.Errorf(
				"failed to update commit timestamp: %w",
				err,
			)
		}
	}
	if t.blobTxn != nil {
		if err := t.blobTxn.Commit(); err != nil {
			if t.metadataTxn != nil {
				_ = t.metadataTxn.Rollback()
			}
			return commitResultFailed, fmt.Errorf("blob commit failed: %w", err)
		}
	}
	if t.metadataTxn != nil {
		if err := t.metadataTxn.Commit(); err != nil {
			t.db.logger.Error(
				"torn commit: vault state saved, journal entries lost",
				"error", err,
			)
			_ = t.metadataTxn.Rollback()
			return commitResultPartial, fmt.Errorf(
				"%w: metadata commit failed after blob commit: %w",
				ErrPartialCommit,
				err,
			)
		}
	}
	return commitResultCommitted, nil
}

// abort rolls back both stores, ignoring errors
func (t *Txn) abort() {
	if t.blobTxn != nil {
		_ = t.blobTxn.Rollback()
	}
	if t.metadataTxn != nil {
		_ = t.metadataTxn.Rollback()
	}
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	var errs []error
	if t.blobTxn != nil {
		if err := t.blobTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("blob rollback: %w", err))
		}
	}
	if t.metadataTxn != nil {
		if err := t.metadataTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("metadata rollback: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Release rolls back the transaction and logs any error, for use with defer
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
