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
	"sync"
	"time"

	"github.com/blinklabs-io/bequest/database/plugin"
)

const DefaultDataDir = ".bequest"

type sqliteFlags struct {
	dataDir        string
	maxConnections int
	busyTimeoutMs  uint64
}

var (
	flags   sqliteFlags
	flagsMu sync.RWMutex
)

func init() {
	flagsMu.Lock()
	flags = sqliteFlags{
		dataDir:        DefaultDataDir,
		maxConnections: DefaultMaxConnections,
		busyTimeoutMs:  uint64(DefaultBusyTimeout.Milliseconds()),
	}
	flagsMu.Unlock()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "sqlite",
			Description:        "SQLite event journal and submission history",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "directory for the sqlite file, empty keeps it in memory",
					DefaultValue: DefaultDataDir,
					Dest:         &(flags.dataDir),
				},
				{
					Name:         "max-connections",
					Type:         plugin.PluginOptionTypeInt,
					Description:  "connection pool size",
					DefaultValue: DefaultMaxConnections,
					Dest:         &(flags.maxConnections),
				},
				{
					Name:         "busy-timeout-ms",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "milliseconds to wait on a locked database",
					DefaultValue: uint64(DefaultBusyTimeout.Milliseconds()),
					Dest:         &(flags.busyTimeoutMs),
				},
			},
		},
	)
}

// NewFromCmdlineOptions opens the store from the registered flag values.
// Open errors surface from Start.
func NewFromCmdlineOptions(rt plugin.Runtime) plugin.Plugin {
	flagsMu.RLock()
	f := flags
	flagsMu.RUnlock()
	p, err := NewWithOptions(
		WithLogger(rt.Logger),
		WithPromRegistry(rt.PromRegistry),
		WithDataDir(f.dataDir),
		WithMaxConnections(f.maxConnections),
		WithBusyTimeout(
			time.Duration(f.busyTimeoutMs)*time.Millisecond, //nolint:gosec
		),
	)
	if err != nil {
		if p != nil {
			_ = p.Close()
		}
		return plugin.NewErrorPlugin(err)
	}
	return p
}
