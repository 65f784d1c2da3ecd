// Copyright 2025 Blink Labs Software
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

// Package bequest assembles a vault node: the hosted ledger, its event bus
// and the HTTP API.
package bequest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/bequest/ledger"
)

// runMode constants for operational mode configuration
const (
	runModeServe = "serve"
	runModeDev   = "dev"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	clock            ledger.Clock
	dataDir          string
	blobPlugin       string
	metadataPlugin   string
	runMode          string
	apiListenAddress string
	apiMaxConnsPerIP int
	tracing          bool
	tracingStdout    bool
	shutdownTimeout  time.Duration
	// Genesis parameters
	deployer         common.Address
	vaultAddress     common.Address
	inactivityPeriod time.Duration
	genesisBalances  map[common.Address]uint64
}

// isDevMode returns true if running in development mode
func (c *Config) isDevMode() bool {
	return c.runMode == runModeDev
}

func (n *Node) configValidate() error {
	switch n.config.runMode {
	case "", runModeServe, runModeDev:
	default:
		return fmt.Errorf("invalid run mode: %q", n.config.runMode)
	}
	if n.config.inactivityPeriod < 0 {
		return fmt.Errorf(
			"invalid inactivity period: %s",
			n.config.inactivityPeriod,
		)
	}
	if n.config.apiListenAddress == "" {
		return errors.New("no API listen address defined")
	}
	if n.config.apiMaxConnsPerIP < 0 {
		return errors.New("per-IP connection limit must not be negative")
	}
	if n.config.clock != nil && !n.config.isDevMode() {
		if _, ok := n.config.clock.(*ledger.ManualClock); ok {
			return errors.New("a manual clock requires dev mode")
		}
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new node config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:           slog.New(slog.NewJSONHandler(io.Discard, nil)),
		apiListenAddress: ":8080",
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithRunMode sets the operational mode ("serve" or "dev"). Dev mode drives
// the ledger from a manual clock and enables the faucet.
func WithRunMode(mode string) ConfigOptionFunc {
	return func(c *Config) {
		c.runMode = mode
	}
}

// WithClock overrides the ledger clock
func WithClock(clock ledger.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithAPIListenAddress specifies the host:port of the HTTP API
func WithAPIListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = addr
	}
}

// WithAPIMaxConnectionsPerIP caps concurrent API connections from a single
// source address. Zero disables the limit.
func WithAPIMaxConnectionsPerIP(limit int) ConfigOptionFunc {
	return func(c *Config) {
		c.apiMaxConnsPerIP = limit
	}
}

// WithDeployer specifies the principal that deploys the vault at genesis and
// becomes its first owner
func WithDeployer(deployer common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.deployer = deployer
	}
}

// WithVaultAddress overrides the derived vault address at genesis
func WithVaultAddress(addr common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.vaultAddress = addr
	}
}

// WithInactivityPeriod specifies the inactivity period at genesis
func WithInactivityPeriod(period time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.inactivityPeriod = period
	}
}

// WithGenesisBalances specifies account balances credited at genesis
func WithGenesisBalances(
	balances map[common.Address]uint64,
) ConfigOptionFunc {
	return func(c *Config) {
		c.genesisBalances = balances
	}
}
