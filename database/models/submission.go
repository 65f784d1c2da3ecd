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

package models

import "github.com/blinklabs-io/bequest/database/types"

const (
	SubmissionStatusApplied = "applied"
	SubmissionStatusFailed  = "failed"
)

// Submission records the outcome of every transaction that consumed a nonce
type Submission struct {
	ID        uint         `gorm:"primarykey"`
	TxId      string       `gorm:"size:36;uniqueIndex"`
	Caller    []byte       `gorm:"size:20;index"`
	Op        string       `gorm:"size:32"`
	Nonce     types.Uint64 `gorm:"type:text"`
	Status    string       `gorm:"size:16"`
	Error     string
	Timestamp int64
}

func (Submission) TableName() string {
	return "submission"
}
