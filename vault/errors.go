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

import (
	"errors"
	"fmt"
	"time"
)

// Error categories. Every failure returned by a Vault operation matches
// exactly one of these with errors.Is.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotYetEligible  = errors.New("not yet eligible")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrReentrantCall   = errors.New("reentrant call")
)

var (
	ErrNotOwner      = fmt.Errorf("%w: caller is not owner", ErrUnauthorized)
	ErrNotHeir       = fmt.Errorf("%w: caller is not heir", ErrUnauthorized)
	ErrZeroPrincipal = fmt.Errorf(
		"%w: zero principal not allowed",
		ErrInvalidArgument,
	)
)

// NotYetEligibleError is returned by ActivateSuccession before the
// inactivity period has elapsed
type NotYetEligibleError struct {
	Now        time.Time
	EligibleAt time.Time
}

func (e NotYetEligibleError) Error() string {
	return fmt.Sprintf(
		"%s: eligible at %s, now %s",
		ErrNotYetEligible,
		e.EligibleAt.UTC().Format(time.RFC3339),
		e.Now.UTC().Format(time.RFC3339),
	)
}

func (e NotYetEligibleError) Is(target error) bool {
	return target == ErrNotYetEligible
}

// Remaining returns how long the caller still has to wait
func (e NotYetEligibleError) Remaining() time.Duration {
	return e.EligibleAt.Sub(e.Now)
}

// TransferError is returned by Withdraw when the custody primitive rejects
// the transfer to the owner
type TransferError struct {
	Err       error
	Recipient Principal
	Amount    uint64
}

func (e TransferError) Error() string {
	return fmt.Sprintf(
		"%s: %d to %s: %s",
		ErrTransferFailed,
		e.Amount,
		e.Recipient.Hex(),
		e.Err,
	)
}

func (e TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

func (e TransferError) Unwrap() error {
	return e.Err
}
