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
	"encoding/json"
	"time"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// VaultResponse is returned by GET /api/v1/vault. Amounts are base units
// encoded as decimal strings. Unset principals are null.
type VaultResponse struct {
	Address                 string    `json:"address"`
	Owner                   string    `json:"owner"`
	Heir                    *string   `json:"heir"`
	NewHeir                 *string   `json:"new_heir"`
	LastActivityTime        time.Time `json:"last_activity_time"`
	HeirActivated           bool      `json:"heir_activated"`
	InactivityPeriodSeconds int64     `json:"inactivity_period_seconds"`
	EligibleAt              time.Time `json:"eligible_at"`
	Inactive                bool      `json:"inactive"`
	Balance                 string    `json:"balance"`
	Now                     time.Time `json:"now"`
}

// AccountResponse is returned by GET /api/v1/accounts/{address}.
type AccountResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// EventResponse is one journal entry returned by GET /api/v1/events.
type EventResponse struct {
	Id     uint            `json:"id"`
	TxId   string          `json:"tx_id"`
	Type   string          `json:"type"`
	Caller string          `json:"caller"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data"`
}

// StreamEvent is one message of GET /api/v1/events/stream. It carries the
// event as published, before a journal id is known.
type StreamEvent struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// TxEventResponse is an event raised by an applied transaction.
type TxEventResponse struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TxResponse is returned by POST /api/v1/tx for an applied transaction.
type TxResponse struct {
	TxId   string            `json:"tx_id"`
	Caller string            `json:"caller"`
	Op     string            `json:"op"`
	Nonce  uint64            `json:"nonce"`
	Time   time.Time         `json:"time"`
	Amount string            `json:"amount"`
	Events []TxEventResponse `json:"events"`
}

// TxResultResponse is returned by GET /api/v1/tx/{id}.
type TxResultResponse struct {
	TxId   string    `json:"tx_id"`
	Caller string    `json:"caller"`
	Op     string    `json:"op"`
	Nonce  uint64    `json:"nonce"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// AdvanceRequest is the body of POST /api/v1/dev/advance. Duration uses Go
// duration syntax, such as "720h".
type AdvanceRequest struct {
	Duration string `json:"duration"`
}

type AdvanceResponse struct {
	Now time.Time `json:"now"`
}

// FundRequest is the body of POST /api/v1/dev/fund.
type FundRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type FundResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}
