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

package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrBlobKeyNotFound  = errors.New("blob key not found")
	ErrTxnWrongType     = errors.New("invalid transaction type")
	ErrNilTxn           = errors.New("nil transaction")
	ErrNoStoreAvailable = errors.New("no store available")
)

// Uint64 stores a uint64 as decimal text. Not every metadata backend has an
// unsigned 64-bit column, and nonces use the full range.
//
//nolint:recvcheck
type Uint64 uint64

func (u Uint64) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(u), 10), nil
}

// Scan accepts the string or byte slice that text columns decode to
func (u *Uint64) Scan(val any) error {
	var text string
	switch v := val.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Uint64", val)
	}
	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return err
	}
	*u = Uint64(parsed)
	return nil
}

// Txn is the per-store half of a database transaction
type Txn interface {
	Commit() error
	Rollback() error
}

type BlobItem interface {
	Key() []byte
	ValueCopy(dst []byte) ([]byte, error)
}

// BlobIterator walks keys inside one blob transaction. Items are only valid
// until that transaction finishes.
type BlobIterator interface {
	Rewind()
	Seek(key []byte)
	Valid() bool
	ValidForPrefix(prefix []byte) bool
	Next()
	Item() BlobItem
	Close()
	Err() error
}

type BlobIteratorOptions struct {
	Prefix []byte
}

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// EventQuery selects a page of the event journal
type EventQuery struct {
	// Types restricts results to these event types. An empty list matches all.
	Types []string
	// Caller restricts results to events caused by this principal
	Caller []byte
	// Count is the page size and Page is 1-based
	Count int
	Page  int
	Order string
}
