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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type dbMetrics struct {
	commitsTotal   *prometheus.CounterVec
	commitDuration prometheus.Histogram
}

func newMetrics(promRegistry prometheus.Registerer) *dbMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &dbMetrics{
		commitsTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bequest_database_commits_total",
				Help: "total database transaction commits, by result",
			},
			[]string{"result"},
		),
		commitDuration: promautoFactory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bequest_database_commit_duration_seconds",
				Help:    "time to commit a read-write transaction to both stores",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
		),
	}
}

// observeCommit is a no-op when no registry was configured
func (m *dbMetrics) observeCommit(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(result).Inc()
	if result != commitResultReadOnly {
		m.commitDuration.Observe(elapsed.Seconds())
	}
}
