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

package mysql

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (d *MetadataStoreMysql) registerMetrics() {
	promautoFactory := promauto.With(d.promRegistry)
	d.eventsJournaled = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "bequest_database_metadata_events_total",
			Help: "total events written to the journal",
		},
	)
	if sqlDb, err := d.db.DB(); err == nil {
		d.promRegistry.MustRegister(
			collectors.NewDBStatsCollector(sqlDb, "metadata"),
		)
	}
}
