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

package vault

// guard is a precondition checked against the caller before an operation
// mutates any state
type guard func(Call) error

// check runs the guards in order and returns the first failure
func check(call Call, guards ...guard) error {
	for _, g := range guards {
		if err := g(call); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vault) onlyOwner(call Call) error {
	if call.Caller != v.state.Owner {
		return ErrNotOwner
	}
	return nil
}

func (v *Vault) onlyHeir(call Call) error {
	if !v.state.HasHeir() || call.Caller != v.state.Heir {
		return ErrNotHeir
	}
	return nil
}

func (v *Vault) notEntered(Call) error {
	if v.gate.entered {
		return ErrReentrantCall
	}
	return nil
}

// reentrancyGate is held for the duration of an outbound value transfer
type reentrancyGate struct {
	entered bool
}

func (g *reentrancyGate) enter() error {
	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

func (g *reentrancyGate) exit() {
	g.entered = false
}

// nonReentrant runs fn with the gate held
func (v *Vault) nonReentrant(fn func() error) error {
	if err := v.gate.enter(); err != nil {
		return err
	}
	defer v.gate.exit()
	return fn()
}
