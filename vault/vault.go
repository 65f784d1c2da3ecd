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

// Package vault implements a custodial-succession vault: a single owner
// controls the held value, and a designated heir takes over once the owner
// has been inactive for a fixed period.
package vault

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/bequest/event"
)

// Custody is the value-transfer primitive supplied by the host
type Custody interface {
	BalanceOf(Principal) uint64
	Transfer(from Principal, to Principal, amount uint64) error
}

// Config carries the host services and parameters of a vault
type Config struct {
	Custody          Custody
	Emitter          Emitter
	Logger           *slog.Logger
	InactivityPeriod time.Duration
	// Address is the custody account holding the vault balance
	Address Principal
}

// Vault is a single succession vault. It is not safe for concurrent use.
type Vault struct {
	config Config
	logger *slog.Logger
	state  State
	gate   reentrancyGate
}

// New deploys a vault owned by deployer
func New(cfg Config, deployer Principal, deployedAt time.Time) (*Vault, error) {
	if deployer == NoPrincipal {
		return nil, ErrZeroPrincipal
	}
	return Restore(
		cfg,
		State{
			Owner:            deployer,
			LastActivityTime: deployedAt,
		},
	)
}

// Restore rebuilds a vault from previously persisted state
func Restore(cfg Config, state State) (*Vault, error) {
	if cfg.Custody == nil {
		return nil, errors.New("no custody provided")
	}
	if cfg.Address == NoPrincipal {
		return nil, errors.New("vault address must not be the zero principal")
	}
	if state.Owner == NoPrincipal {
		return nil, errors.New("vault owner must not be the zero principal")
	}
	if cfg.InactivityPeriod <= 0 {
		cfg.InactivityPeriod = DefaultInactivityPeriod
	}
	if cfg.Emitter == nil {
		cfg.Emitter = discardEmitter{}
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Vault{
		config: cfg,
		logger: cfg.Logger.With("component", "vault"),
		state:  state,
	}, nil
}

// State returns a copy of the current state
func (v *Vault) State() State {
	return v.state
}

// Address returns the custody account of the vault
func (v *Vault) Address() Principal {
	return v.config.Address
}

// InactivityPeriod returns how long the owner may stay inactive before the
// heir can take over
func (v *Vault) InactivityPeriod() time.Duration {
	return v.config.InactivityPeriod
}

// Balance returns the value currently held by the vault
func (v *Vault) Balance() uint64 {
	return v.config.Custody.BalanceOf(v.config.Address)
}

// EligibleAt returns the earliest instant the heir may activate succession
func (v *Vault) EligibleAt() time.Time {
	return v.state.EligibleAt(v.config.InactivityPeriod)
}

// Inactive reports whether the owner is past the inactivity threshold at now
func (v *Vault) Inactive(now time.Time) bool {
	return IsInactive(
		v.state.LastActivityTime,
		now,
		v.config.InactivityPeriod,
	)
}

// Withdraw drains the full balance to the owner and refreshes the activity
// timestamp. It returns the amount transferred.
func (v *Vault) Withdraw(call Call) (uint64, error) {
	if err := check(call, v.notEntered, v.onlyOwner); err != nil {
		return 0, err
	}
	var amount uint64
	err := v.nonReentrant(func() error {
		prevActivity := v.state.LastActivityTime
		v.touch(call.Time)
		owner := v.state.Owner
		amount = v.config.Custody.BalanceOf(v.config.Address)
		if err := v.config.Custody.Transfer(v.config.Address, owner, amount); err != nil {
			v.state.LastActivityTime = prevActivity
			return TransferError{
				Err:       err,
				Recipient: owner,
				Amount:    amount,
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	v.logger.Debug(
		"withdrawal",
		"owner", v.state.Owner.Hex(),
		"amount", amount,
	)
	v.emit(call, WithdrawalEventType, WithdrawalEvent{Amount: amount})
	return amount, nil
}

// ResetActivity refreshes the activity timestamp without moving value
func (v *Vault) ResetActivity(call Call) error {
	if err := check(call, v.notEntered, v.onlyOwner); err != nil {
		return err
	}
	v.touch(call.Time)
	v.emit(
		call,
		ActivityResetEventType,
		ActivityResetEvent{Time: v.state.LastActivityTime},
	)
	return nil
}

// SetHeir designates (or replaces) the heir
func (v *Vault) SetHeir(call Call, candidate Principal) error {
	if err := check(call, v.notEntered, v.onlyOwner); err != nil {
		return err
	}
	if candidate == NoPrincipal {
		return ErrZeroPrincipal
	}
	v.emit(
		call,
		HeirSetEventType,
		HeirSetEvent{Previous: v.state.Heir, New: candidate},
	)
	v.state.Heir = candidate
	return nil
}

// DesignateNewHeir lets the current heir stage their own successor, which
// takes effect when succession is activated
func (v *Vault) DesignateNewHeir(call Call, candidate Principal) error {
	if err := v.notEntered(call); err != nil {
		return err
	}
	if candidate == NoPrincipal {
		return ErrZeroPrincipal
	}
	if err := v.onlyHeir(call); err != nil {
		return err
	}
	v.state.NewHeir = candidate
	v.emit(
		call,
		NewHeirDesignatedEventType,
		NewHeirDesignatedEvent{Candidate: candidate},
	)
	return nil
}

// ActivateSuccession hands ownership to the heir once the owner has been
// inactive for the configured period. A staged new heir, if any, becomes
// the heir.
func (v *Vault) ActivateSuccession(call Call) error {
	if err := check(call, v.notEntered, v.onlyHeir); err != nil {
		return err
	}
	if !v.Inactive(call.Time) {
		return NotYetEligibleError{
			Now:        call.Time,
			EligibleAt: v.EligibleAt(),
		}
	}
	prevHeir := v.state.Heir
	v.state.Owner = prevHeir
	if v.state.HasNewHeir() {
		newHeir := v.state.NewHeir
		v.state.NewHeir = NoPrincipal
		v.state.Heir = newHeir
		v.emit(
			call,
			HeirChangedEventType,
			HeirChangedEvent{Old: prevHeir, New: newHeir},
		)
	}
	v.state.HeirActivated = true
	v.logger.Info(
		"succession activated",
		"owner", v.state.Owner.Hex(),
		"heir", v.state.Heir.Hex(),
	)
	v.emit(
		call,
		SuccessionActivatedEventType,
		SuccessionActivatedEvent{Principal: call.Caller},
	)
	return nil
}

// Receive accepts incoming value. The balance itself is kept by custody.
func (v *Vault) Receive(from Principal, amount uint64) error {
	v.logger.Debug(
		"received value",
		"from", from.Hex(),
		"amount", amount,
	)
	return nil
}

// touch records owner activity, never moving the timestamp backwards
func (v *Vault) touch(now time.Time) {
	if now.After(v.state.LastActivityTime) {
		v.state.LastActivityTime = now
	}
}

func (v *Vault) emit(call Call, eventType event.EventType, data any) {
	v.config.Emitter.Emit(
		event.Event{
			Type:      eventType,
			Timestamp: call.Time,
			Data:      data,
		},
	)
}
