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

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/ledger"
	"github.com/blinklabs-io/bequest/vault"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signer does not match caller")
	ErrWrongVault       = errors.New("transaction is for another vault")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
)

// Error codes carried in ErrorResponse.Error
const (
	CodeUnauthorized     = "unauthorized"
	CodeInvalidArgument  = "invalid_argument"
	CodeNotYetEligible   = "not_yet_eligible"
	CodeTransferFailed   = "transfer_failed"
	CodeReentrantCall    = "reentrant_call"
	CodeNonceMismatch    = "nonce_mismatch"
	CodeDuplicateTx      = "duplicate_tx"
	CodeInvalidSignature = "invalid_signature"
	CodeInvalidRequest   = "invalid_request"
	CodeNotFound         = "not_found"
	CodeDevModeDisabled  = "dev_mode_disabled"
	CodeInternal         = "internal_error"
)

var codeErrors = map[string]error{
	CodeUnauthorized:     vault.ErrUnauthorized,
	CodeInvalidArgument:  vault.ErrInvalidArgument,
	CodeNotYetEligible:   vault.ErrNotYetEligible,
	CodeTransferFailed:   vault.ErrTransferFailed,
	CodeReentrantCall:    vault.ErrReentrantCall,
	CodeNonceMismatch:    ledger.ErrNonceMismatch,
	CodeDuplicateTx:      ledger.ErrDuplicateTx,
	CodeInvalidSignature: ErrInvalidSignature,
	CodeInvalidRequest:   ErrInvalidRequest,
	CodeNotFound:         ErrNotFound,
	CodeDevModeDisabled:  ledger.ErrDevModeDisabled,
}

// classifyError maps an error to its HTTP status and error code
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden, CodeUnauthorized
	case errors.Is(err, vault.ErrInvalidArgument):
		return http.StatusBadRequest, CodeInvalidArgument
	case errors.Is(err, vault.ErrNotYetEligible):
		return http.StatusConflict, CodeNotYetEligible
	case errors.Is(err, vault.ErrTransferFailed),
		errors.Is(err, custody.ErrBalanceOverflow):
		return http.StatusUnprocessableEntity, CodeTransferFailed
	case errors.Is(err, vault.ErrReentrantCall):
		return http.StatusConflict, CodeReentrantCall
	case errors.Is(err, ledger.ErrNonceMismatch):
		return http.StatusConflict, CodeNonceMismatch
	case errors.Is(err, ledger.ErrDuplicateTx):
		return http.StatusConflict, CodeDuplicateTx
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrSignerMismatch):
		return http.StatusUnauthorized, CodeInvalidSignature
	case errors.Is(err, ErrWrongVault),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ledger.ErrInvalidAdvance),
		errors.Is(err, ledger.ErrClockOverflow):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledger.ErrTxNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ledger.ErrDevModeDisabled),
		errors.Is(err, ledger.ErrClockNotAdjustable):
		return http.StatusForbidden, CodeDevModeDisabled
	}
	return http.StatusInternalServerError, CodeInternal
}

// APIError is returned by Client for non-2xx responses. It matches the
// sentinel error of its code with errors.Is.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	sentinel, ok := codeErrors[e.Code]
	return ok && sentinel == target
}
