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

package sqlite

import (
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
func (d *MetadataStoreSqlite) AddEvents(
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
	d.countEvents(len(events))
	return nil
}

// GetEvents returns one page of the journal matching the query along with
// the total number of matching events
func (d *MetadataStoreSqlite) GetEvents(
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
	// A new session lets the filtered statement serve both queries
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
