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

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	callResultApplied  = "applied"
	callResultFailed   = "failed"
	callResultRejected = "rejected"
	callResultError    = "error"
)

type stateMetrics struct {
	balance          prometheus.Gauge
	lastActivityTime prometheus.Gauge
	eligibleAt       prometheus.Gauge
	heirActivated    prometheus.Gauge
	callsTotal       *prometheus.CounterVec
	successionsTotal prometheus.Counter
	callLatency      prometheus.Histogram
	nodeStartTime    prometheus.Gauge
}

func (m *stateMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.balance = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "bequest_vault_balance",
		Help: "value currently held by the vault, in base units",
	})
	m.lastActivityTime = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "bequest_vault_last_activity_timestamp_seconds",
		Help: "unix timestamp of the last owner activity",
	})
	m.eligibleAt = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "bequest_vault_eligible_at_timestamp_seconds",
		Help: "unix timestamp from which the heir may activate succession",
	})
	m.heirActivated = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "bequest_vault_heir_activated",
		Help: "whether succession has ever been activated (0 or 1)",
	})
	m.callsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bequest_ledger_calls_total",
			Help: "total submitted calls, by operation and result",
		},
		[]string{"op", "result"},
	)
	m.successionsTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "bequest_vault_successions_total",
		Help: "total successful succession activations",
	})
	m.callLatency = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bequest_ledger_call_duration_seconds",
			Help:    "time to execute and persist a submitted call",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100us to ~1.6s
		},
	)
	m.nodeStartTime = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "bequest_node_start_timestamp_seconds",
			Help: "unix timestamp when the ledger was opened",
		},
	)
}
