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
	"errors"
	"fmt"

	"github.com/blinklabs-io/bequest/vault"
)

var (
	ErrClosed             = errors.New("ledger is closed")
	ErrNonceMismatch      = errors.New("nonce mismatch")
	ErrDuplicateTx        = errors.New("duplicate transaction")
	ErrTxNotFound         = errors.New("transaction not found")
	ErrDevModeDisabled    = errors.New("only available in dev mode")
	ErrClockNotAdjustable = errors.New("clock cannot be adjusted")
	ErrNoDeployer         = errors.New("no deployer configured")
)

var (
	ErrUnknownOp  = fmt.Errorf("%w: unknown operation", vault.ErrInvalidArgument)
	ErrZeroCaller = fmt.Errorf("%w: caller must not be the zero principal", vault.ErrInvalidArgument)
	ErrZeroAmount = fmt.Errorf("%w: amount must be positive", vault.ErrInvalidArgument)
)

// NonceError is returned when a transaction does not carry the next nonce of
// its caller. The transaction is not executed and the nonce is not consumed.
type NonceError struct {
	Expected uint64
	Got      uint64
}

func (e NonceError) Error() string {
	return fmt.Sprintf(
		"%s: expected %d, got %d",
		ErrNonceMismatch,
		e.Expected,
		e.Got,
	)
}

func (e NonceError) Is(target error) bool {
	return target == ErrNonceMismatch
}
