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

package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/types"
)

const (
	DefaultEventPageSize = 100
	MaxEventPageSize     = 1000
)

// AddEvents appends events to the journal in order
func (d *MetadataStorePostgres) AddEvents(
	events []models.VaultEvent,
	txn types.Txn,
) error {
	if len(events) == 0 {
		return nil
	}
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	if result := db.Create(&events); result.Error != nil {
		return fmt.Errorf("add events: %w", result.Error)
	}
	if d.eventsJournaled != nil {
		d.eventsJournaled.Add(float64(len(events)))
	}
	return nil
}

// GetEvents returns one page of the journal matching the query along with
// the total number of matching events
func (d *MetadataStorePostgres) GetEvents(
	query types.EventQuery,
	txn types.Txn,
) ([]models.VaultEvent, int64, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, 0, err
	}
	count := query.Count
	if count <= 0 {
		count = DefaultEventPageSize
	}
	count = min(count, MaxEventPageSize)
	page := max(query.Page, 1)
	order := "id asc"
	switch query.Order {
	case "", types.OrderAsc:
	case types.OrderDesc:
		order = "id desc"
	default:
		return nil, 0, fmt.Errorf("invalid order: %q", query.Order)
	}
	filtered := db.Model(&models.VaultEvent{})
	if len(query.Types) > 0 {
		filtered = filtered.Where("type IN ?", query.Types)
	}
	if len(query.Caller) > 0 {
		filtered = filtered.Where("caller = ?", query.Caller)
	}
	var total int64
	if result := filtered.Session(&gorm.Session{}).Count(&total); result.Error != nil {
		return nil, 0, result.Error
	}
	var ret []models.VaultEvent
	result := filtered.Session(&gorm.Session{}).
		Order(order).
		Limit(count).
		Offset((page - 1) * count).
		Find(&ret)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return ret, total, nil
}

// AddSubmission records the outcome of a transaction
func (d *MetadataStorePostgres) AddSubmission(
	submission *models.Submission,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	return db.Create(submission).Error
}

// GetSubmission returns the recorded outcome of a transaction by ID
func (d *MetadataStorePostgres) GetSubmission(
	txId string,
	txn types.Txn,
) (*models.Submission, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret models.Submission
	result := db.Where("tx_id = ?", txId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, result.Error
	}
	return &ret, nil
}
