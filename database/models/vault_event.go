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

// VaultEvent is one entry of the append-only event journal. The ID doubles
// as the journal sequence number.
type VaultEvent struct {
	ID     uint   `gorm:"primarykey"`
	TxId   string `gorm:"size:36;index"`
	Type   string `gorm:"size:64;index"`
	Caller []byte `gorm:"size:20;index"`
	// Unix nanoseconds of the call that emitted the event
	Timestamp int64 `gorm:"index"`
	// JSON encoded payload
	Data []byte
}

func (VaultEvent) TableName() string {
	return "vault_event"
}
