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

// Package faultstore registers a metadata plugin backed by SQLite whose
// transaction commits can be made to fail, for exercising torn commits.
package faultstore

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/plugin"
	"github.com/blinklabs-io/bequest/database/plugin/metadata/sqlite"
	"github.com/blinklabs-io/bequest/database/types"
)

const PluginName = "faulty-sqlite"

var ErrCommitFailed = errors.New("injected commit failure")

var (
	dataDir   string
	dataDirMu sync.RWMutex
	failNext  atomic.Int64
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               PluginName,
			Description:        "SQLite metadata store with injectable commit failures",
			NewFromOptionsFunc: newFromOptions,
			Options: []plugin.PluginOption{
				{
					Name:        "data-dir",
					Type:        plugin.PluginOptionTypeString,
					Description: "directory for the sqlite file, empty keeps it in memory",
					Dest:        &dataDir,
				},
			},
		},
	)
}

// FailCommits makes the next n metadata commits of any store fail
func FailCommits(n int64) {
	failNext.Store(n)
}

func takeFailure() bool {
	for {
		n := failNext.Load()
		if n <= 0 {
			return false
		}
		if failNext.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func newFromOptions(rt plugin.Runtime) plugin.Plugin {
	dataDirMu.RLock()
	dir := dataDir
	dataDirMu.RUnlock()
	inner, err := sqlite.NewWithOptions(
		sqlite.WithLogger(rt.Logger),
		sqlite.WithDataDir(dir),
	)
	if err != nil {
		if inner != nil {
			_ = inner.Close()
		}
		return plugin.NewErrorPlugin(err)
	}
	return &Store{MetadataStoreSqlite: inner}
}

// Store wraps a SQLite metadata store, unwrapping its own transactions
type Store struct {
	*sqlite.MetadataStoreSqlite
}

type faultTxn struct {
	inner types.Txn
}

func (t *faultTxn) Commit() error {
	if takeFailure() {
		_ = t.inner.Rollback()
		return ErrCommitFailed
	}
	return t.inner.Commit()
}

func (t *faultTxn) Rollback() error {
	return t.inner.Rollback()
}

func unwrap(txn types.Txn) types.Txn {
	if t, ok := txn.(*faultTxn); ok {
		return t.inner
	}
	return txn
}

func (s *Store) Transaction() types.Txn {
	return &faultTxn{inner: s.MetadataStoreSqlite.Transaction()}
}

func (s *Store) SetCommitTimestamp(ts int64, txn types.Txn) error {
	return s.MetadataStoreSqlite.SetCommitTimestamp(ts, unwrap(txn))
}

func (s *Store) AddEvents(events []models.VaultEvent, txn types.Txn) error {
	return s.MetadataStoreSqlite.AddEvents(events, unwrap(txn))
}

func (s *Store) GetEvents(
	query types.EventQuery,
	txn types.Txn,
) ([]models.VaultEvent, int64, error) {
	return s.MetadataStoreSqlite.GetEvents(query, unwrap(txn))
}

func (s *Store) AddSubmission(sub *models.Submission, txn types.Txn) error {
	return s.MetadataStoreSqlite.AddSubmission(sub, unwrap(txn))
}

func (s *Store) GetSubmission(
	txId string,
	txn types.Txn,
) (*models.Submission, error) {
	return s.MetadataStoreSqlite.GetSubmission(txId, unwrap(txn))
}
