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

package bequest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/bequest/api"
	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/ledger"
	"github.com/blinklabs-io/bequest/vault"
)

type Node struct {
	eventBus      *event.EventBus
	ledgerState   *ledger.LedgerState
	api           *api.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	ready         chan struct{}
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		eventBus.Stop()
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Run starts the node and blocks until ctx is cancelled or Stop is called
func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(ctx); err != nil {
			return err
		}
	}
	// Load state
	state, err := ledger.NewLedgerState(
		ledger.LedgerStateConfig{
			Logger:           n.config.logger,
			DataDir:          n.config.dataDir,
			BlobPlugin:       n.config.blobPlugin,
			MetadataPlugin:   n.config.metadataPlugin,
			EventBus:         n.eventBus,
			PromRegistry:     n.config.promRegistry,
			Clock:            n.config.clock,
			DevMode:          n.config.isDevMode(),
			Deployer:         n.config.deployer,
			VaultAddress:     n.config.vaultAddress,
			InactivityPeriod: n.config.inactivityPeriod,
			GenesisBalances:  n.config.genesisBalances,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to load state database: %w", err)
	}
	n.ledgerState = state
	snap := state.Snapshot()
	n.config.logger.Info(
		"vault loaded",
		"component", "node",
		"address", snap.Address.Hex(),
		"owner", snap.State.Owner.Hex(),
		"eligible_at", snap.EligibleAt,
		"dev_mode", n.config.isDevMode(),
	)
	// Log committed vault events
	for _, evtType := range vault.EventTypes {
		n.eventBus.SubscribeFunc(evtType, n.logVaultEvent)
	}
	// Configure API
	n.api = api.New(
		api.Config{
			ListenAddress:       n.config.apiListenAddress,
			MaxConnectionsPerIP: n.config.apiMaxConnsPerIP,
			PromRegistry:        n.config.promRegistry,
		},
		n.ledgerState,
		n.config.logger,
	)
	if err := n.api.Start(ctx); err != nil {
		return err
	}
	close(n.ready)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

// Ready is closed once Run has started every component
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// LedgerState returns the hosted ledger. It is nil until Run has loaded it.
func (n *Node) LedgerState() *ledger.LedgerState {
	return n.ledgerState
}

// APIAddress returns the bound address of the API server
func (n *Node) APIAddress() string {
	if n.api == nil {
		return n.config.apiListenAddress
	}
	return n.api.Addr()
}

func (n *Node) logVaultEvent(evt event.Event) {
	n.config.logger.Info(
		"vault event",
		"component", "node",
		"type", evt.Type,
		"data", evt.Data,
	)
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work")

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Flush state and close database
	n.config.logger.Debug("shutdown phase 2: flushing state")

	if n.ledgerState != nil {
		if closeErr := n.ledgerState.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("ledger state close: %w", closeErr),
			)
		}
	}

	// Phase 3: Cleanup resources
	n.config.logger.Debug("shutdown phase 3: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
