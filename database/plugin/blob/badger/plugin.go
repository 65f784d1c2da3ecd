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

package badger

import (
	"sync"

	"github.com/blinklabs-io/bequest/database/plugin"
)

// Defaults sized for a store that holds a handful of small records
const (
	DefaultBlockCacheSize   = 64 << 20
	DefaultIndexCacheSize   = 16 << 20
	DefaultValueLogFileSize = 64 << 20
	DefaultMemTableSize     = 16 << 20
	DefaultValueThreshold   = 1 << 10
	DefaultDataDir          = ".bequest"
)

type badgerFlags struct {
	dataDir        string
	blockCacheSize uint64
	indexCacheSize uint64
	gcEnabled      bool
	syncWrites     bool
}

var (
	flags   badgerFlags
	flagsMu sync.RWMutex
)

func defaultFlags() badgerFlags {
	return badgerFlags{
		dataDir:        DefaultDataDir,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
		gcEnabled:      true,
		syncWrites:     true,
	}
}

func init() {
	flagsMu.Lock()
	flags = defaultFlags()
	flagsMu.Unlock()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "badger",
			Description:        "BadgerDB vault state store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "directory for vault state, empty keeps it in memory",
					DefaultValue: DefaultDataDir,
					Dest:         &(flags.dataDir),
				},
				{
					Name:         "block-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "block cache size in bytes",
					DefaultValue: uint64(DefaultBlockCacheSize),
					Dest:         &(flags.blockCacheSize),
				},
				{
					Name:         "index-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "index cache size in bytes",
					DefaultValue: uint64(DefaultIndexCacheSize),
					Dest:         &(flags.indexCacheSize),
				},
				{
					Name:         "gc",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "run periodic value log collection",
					DefaultValue: true,
					Dest:         &(flags.gcEnabled),
				},
				{
					Name:         "sync-writes",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "fsync every commit",
					DefaultValue: true,
					Dest:         &(flags.syncWrites),
				},
			},
		},
	)
}

// NewFromCmdlineOptions builds the store from the registered flag values.
// Construction errors surface from Start.
func NewFromCmdlineOptions(rt plugin.Runtime) plugin.Plugin {
	flagsMu.RLock()
	f := flags
	flagsMu.RUnlock()
	p, err := New(
		WithLogger(rt.Logger),
		WithPromRegistry(rt.PromRegistry),
		WithDataDir(f.dataDir),
		WithCacheSizes(f.blockCacheSize, f.indexCacheSize),
		WithGc(f.gcEnabled),
		WithSyncWrites(f.syncWrites),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
