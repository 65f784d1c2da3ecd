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
	"fmt"
	"time"
)

// CommitTimestampError reports that the blob and metadata stores were not
// last committed together
type CommitTimestampError struct {
	MetadataTimestamp int64
	BlobTimestamp     int64
}

func (e CommitTimestampError) Error() string {
	return fmt.Sprintf(
		"commit timestamp mismatch: %d (metadata) != %d (blob)",
		e.MetadataTimestamp,
		e.BlobTimestamp,
	)
}

// BlobAhead reports whether the blob store holds a commit whose journal
// entries are missing, the outcome of a failed metadata commit
func (e CommitTimestampError) BlobAhead() bool {
	return e.BlobTimestamp > e.MetadataTimestamp
}

func (d *Database) checkCommitTimestamp() error {
	metadataTimestamp, err := d.Metadata().GetCommitTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get metadata commit timestamp: %w", err)
	}
	blobTimestamp, err := d.Blob().GetCommitTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get blob commit timestamp: %w", err)
	}
	d.commitMu.Lock()
	d.lastCommit = max(d.lastCommit, blobTimestamp, metadataTimestamp)
	d.commitMu.Unlock()
	if blobTimestamp != metadataTimestamp {
		return CommitTimestampError{
			MetadataTimestamp: metadataTimestamp,
			BlobTimestamp:     blobTimestamp,
		}
	}
	return nil
}

// nextCommitTimestamp returns the wall clock in nanoseconds, bumped past the
// previous commit so stamps strictly increase even if the clock steps back
func (d *Database) nextCommitTimestamp() int64 {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	d.lastCommit = max(time.Now().UnixNano(), d.lastCommit+1)
	return d.lastCommit
}

func (d *Database) updateCommitTimestamp(txn *Txn, timestamp int64) error {
	if err := d.Metadata().SetCommitTimestamp(timestamp, txn.Metadata()); err != nil {
		return err
	}
	return d.Blob().SetCommitTimestamp(timestamp, txn.Blob())
}

// RecoverCommitTimestamp realigns the commit timestamps of both stores after
// a torn commit. The blob store is authoritative for vault state and
// balances, so journal entries of the torn commit are lost.
func (d *Database) RecoverCommitTimestamp() error {
	txn := d.Transaction(true)
	if err := txn.Commit(); err != nil {
		return err
	}
	return d.checkCommitTimestamp()
}
