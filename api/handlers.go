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
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/blinklabs-io/bequest/database/types"
	"github.com/blinklabs-io/bequest/ledger"
	"github.com/blinklabs-io/bequest/vault"
)

const maxRequestBodySize = 64 * 1024

// writeJSON writes a JSON response with the given status
// code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(
	w http.ResponseWriter,
	status int,
	code string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      code,
		Message:    message,
	})
}

// writeAPIError maps err to a status and error code. Internal errors are
// logged and their details withheld.
func (s *Server) writeAPIError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	status, code := classifyError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"path", r.URL.Path,
			"request_id", RequestIdFromContext(r.Context()),
			"error", err,
		)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(
		w,
		http.StatusNotFound,
		CodeNotFound,
		"no route for "+r.URL.Path,
	)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(
		http.MaxBytesReader(w, r.Body, maxRequestBodySize),
	)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleVault handles GET /api/v1/vault and returns the vault snapshot
func (s *Server) handleVault(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, vaultResponse(s.node.Snapshot()))
}

func vaultResponse(snap ledger.VaultSnapshot) VaultResponse {
	return VaultResponse{
		Address:                 snap.Address.Hex(),
		Owner:                   snap.State.Owner.Hex(),
		Heir:                    optionalPrincipal(snap.State.Heir),
		NewHeir:                 optionalPrincipal(snap.State.NewHeir),
		LastActivityTime:        snap.State.LastActivityTime,
		HeirActivated:           snap.State.HeirActivated,
		InactivityPeriodSeconds: int64(snap.InactivityPeriod / time.Second),
		EligibleAt:              snap.EligibleAt,
		Inactive:                snap.Inactive,
		Balance:                 strconv.FormatUint(snap.Balance, 10),
		Now:                     snap.Now,
	}
}

func optionalPrincipal(p vault.Principal) *string {
	if p == vault.NoPrincipal {
		return nil
	}
	ret := p.Hex()
	return &ret
}

// handleAccount handles GET /api/v1/accounts/{address}
func (s *Server) handleAccount(
	w http.ResponseWriter,
	r *http.Request,
) {
	addr, err := parseAddress("address", mux.Vars(r)["address"])
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	acct := s.node.Account(addr)
	writeJSON(w, http.StatusOK, AccountResponse{
		Address: addr.Hex(),
		Balance: strconv.FormatUint(acct.Balance, 10),
		Nonce:   acct.Nonce,
	})
}

// handleEvents handles GET /api/v1/events. The type parameter may be
// repeated or comma separated.
func (s *Server) handleEvents(
	w http.ResponseWriter,
	r *http.Request,
) {
	params, err := ParsePagination(r)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			CodeInvalidRequest,
			err.Error(),
		)
		return
	}
	query := types.EventQuery{
		Count: params.Count,
		Page:  params.Page,
		Order: params.Order,
	}
	for _, v := range r.URL.Query()["type"] {
		for t := range strings.SplitSeq(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				query.Types = append(query.Types, t)
			}
		}
	}
	if caller := r.URL.Query().Get("caller"); caller != "" {
		addr, err := parseAddress("caller", caller)
		if err != nil {
			s.writeAPIError(w, r, err)
			return
		}
		query.Caller = addr.Bytes()
	}
	events, total, err := s.node.Events(query)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	resp := make([]EventResponse, 0, len(events))
	for _, evt := range events {
		resp = append(resp, EventResponse{
			Id:     evt.Id,
			TxId:   evt.TxId,
			Type:   string(evt.Type),
			Caller: evt.Caller.Hex(),
			Time:   evt.Time,
			Data:   evt.Data,
		})
	}
	SetPaginationHeaders(w, total, params)
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitTx handles POST /api/v1/tx
func (s *Server) handleSubmitTx(
	w http.ResponseWriter,
	r *http.Request,
) {
	var env TxEnvelope
	if err := decodeBody(w, r, &env); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	tx, err := env.Verify(s.node.Snapshot().Address)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	receipt, err := s.node.Submit(r.Context(), tx)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse(receipt))
}

func txResponse(receipt *ledger.Receipt) TxResponse {
	resp := TxResponse{
		TxId:   receipt.TxId,
		Caller: receipt.Caller.Hex(),
		Op:     string(receipt.Op),
		Nonce:  receipt.Nonce,
		Time:   receipt.Time,
		Amount: strconv.FormatUint(receipt.Amount, 10),
		Events: make([]TxEventResponse, 0, len(receipt.Events)),
	}
	for _, evt := range receipt.Events {
		resp.Events = append(resp.Events, TxEventResponse{
			Type: string(evt.Type),
			Data: evt.Data,
		})
	}
	return resp
}

// handleGetTx handles GET /api/v1/tx/{id}
func (s *Server) handleGetTx(
	w http.ResponseWriter,
	r *http.Request,
) {
	res, err := s.node.Submission(mux.Vars(r)["id"])
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TxResultResponse{
		TxId:   res.TxId,
		Caller: res.Caller.Hex(),
		Op:     string(res.Op),
		Nonce:  res.Nonce,
		Status: res.Status,
		Error:  res.Error,
		Time:   res.Time,
	})
}

// handleDevAdvance handles POST /api/v1/dev/advance
func (s *Server) handleDevAdvance(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req AdvanceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		s.writeAPIError(w, r, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	now, err := s.node.AdvanceClock(d)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdvanceResponse{Now: now})
}

// handleDevFund handles POST /api/v1/dev/fund
func (s *Server) handleDevFund(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req FundRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		s.writeAPIError(
			w,
			r,
			fmt.Errorf("%w: amount %q", ErrInvalidRequest, req.Amount),
		)
		return
	}
	balance, err := s.node.Fund(r.Context(), addr, amount)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FundResponse{
		Address: addr.Hex(),
		Balance: strconv.FormatUint(balance, 10),
	})
}
