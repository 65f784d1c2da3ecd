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
	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/types"
)

// AddEvents appends events to the journal
func (d *Database) AddEvents(events []models.VaultEvent, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.AddEvents(events, txn)
		})
	}
	return d.Metadata().AddEvents(events, txn.Metadata())
}

// GetEvents returns a page of the journal and the total number of matching
// events. Reads see only committed entries.
func (d *Database) GetEvents(
	query types.EventQuery,
) ([]models.VaultEvent, int64, error) {
	return d.Metadata().GetEvents(query, nil)
}

// AddSubmission records the outcome of a transaction
func (d *Database) AddSubmission(submission *models.Submission, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.AddSubmission(submission, txn)
		})
	}
	return d.Metadata().AddSubmission(submission, txn.Metadata())
}

// GetSubmission returns the recorded outcome of a transaction by ID
func (d *Database) GetSubmission(txId string) (*models.Submission, error) {
	return d.Metadata().GetSubmission(txId, nil)
}
