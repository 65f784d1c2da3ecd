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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/bequest"
	"github.com/blinklabs-io/bequest/internal/config"
)

// NodeOptions builds the library options for cfg
func NodeOptions(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) ([]bequest.ConfigOptionFunc, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	inactivityPeriod, err := cfg.InactivityPeriodDuration()
	if err != nil {
		return nil, err
	}
	deployer, err := cfg.DeployerAddress()
	if err != nil {
		return nil, err
	}
	vaultAddress, err := cfg.VaultAddressValue()
	if err != nil {
		return nil, err
	}
	genesisBalances, err := cfg.GenesisAccounts()
	if err != nil {
		return nil, err
	}
	return []bequest.ConfigOptionFunc{
		bequest.WithLogger(logger),
		bequest.WithDatabasePath(cfg.DatabasePath),
		bequest.WithBlobPlugin(cfg.BlobPlugin),
		bequest.WithMetadataPlugin(cfg.MetadataPlugin),
		bequest.WithRunMode(string(cfg.RunMode)),
		bequest.WithShutdownTimeout(shutdownTimeout),
		bequest.WithAPIListenAddress(cfg.ApiListenAddress()),
		bequest.WithAPIMaxConnectionsPerIP(cfg.ApiMaxConnectionsPerIp),
		bequest.WithPrometheusRegistry(promRegistry),
		bequest.WithTracing(cfg.Tracing),
		bequest.WithTracingStdout(cfg.TracingStdout),
		bequest.WithDeployer(deployer),
		bequest.WithVaultAddress(vaultAddress),
		bequest.WithInactivityPeriod(inactivityPeriod),
		bequest.WithGenesisBalances(genesisBalances),
	}, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	opts, err := NodeOptions(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	n, err := bequest.New(bequest.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics listener
	metricsAddr := cfg.MetricsListenAddress()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	metricsListener, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		_ = n.Stop()
		return fmt.Errorf("failed to start metrics listener: %w", err)
	}
	logger.Info(
		"serving prometheus metrics on "+metricsAddr,
		"component",
		"node",
	)
	go func() {
		if err := metricsServer.Serve(metricsListener); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error(
				fmt.Sprintf("metrics listener failed: %s", err),
				"component", "node",
			)
		}
	}()
	shutdownMetrics := func() {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- n.Run(signalCtx)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		shutdownMetrics()
		if err := n.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		shutdownMetrics()
		if err == nil {
			logger.Info("node stopped")
			if err := n.Stop(); err != nil {
				logger.Error("shutdown errors occurred", "error", err)
				return err
			}
			return nil
		}
		logger.Error("node error", "error", err)
		signalCtxStop()
		if stopErr := n.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		return err
	}
}
