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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blinklabs-io/bequest/ledger"
)

const defaultClientTimeout = 30 * time.Second

// Client talks to a bequest API server
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type ClientOptionFunc func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOptionFunc {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the server at baseURL, such as
// "http://localhost:8080"
func NewClient(baseURL string, opts ...ClientOptionFunc) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL scheme: %q", u.Scheme)
	}
	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   defaultClientTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EventsQuery filters and pages Client.Events
type EventsQuery struct {
	Types  []string
	Caller common.Address
	Count  int
	Page   int
	Order  string
}

func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return err
	}
	if !resp.IsHealthy {
		return errors.New("server reports unhealthy")
	}
	return nil
}

func (c *Client) Vault(ctx context.Context) (*VaultResponse, error) {
	var resp VaultResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/vault", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Account(
	ctx context.Context,
	addr common.Address,
) (*AccountResponse, error) {
	var resp AccountResponse
	if err := c.do(
		ctx,
		http.MethodGet,
		"/api/v1/accounts/"+addr.Hex(),
		nil,
		nil,
		&resp,
	); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events returns one page of the event journal and the total match count
func (c *Client) Events(
	ctx context.Context,
	query EventsQuery,
) ([]EventResponse, int64, error) {
	params := url.Values{}
	for _, t := range query.Types {
		params.Add("type", t)
	}
	if query.Caller != (common.Address{}) {
		params.Set("caller", query.Caller.Hex())
	}
	if query.Count > 0 {
		params.Set("count", strconv.Itoa(query.Count))
	}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.Order != "" {
		params.Set("order", query.Order)
	}
	var resp []EventResponse
	var header http.Header
	if err := c.do(
		ctx,
		http.MethodGet,
		"/api/v1/events",
		params,
		nil,
		&resp,
		&header,
	); err != nil {
		return nil, 0, err
	}
	total, err := strconv.ParseInt(
		header.Get(headerCountTotal),
		10,
		64,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid pagination header: %w", err)
	}
	return resp, total, nil
}

// Transaction returns the recorded outcome of a submitted transaction
func (c *Client) Transaction(
	ctx context.Context,
	txId string,
) (*TxResultResponse, error) {
	var resp TxResultResponse
	if err := c.do(
		ctx,
		http.MethodGet,
		"/api/v1/tx/"+url.PathEscape(txId),
		nil,
		nil,
		&resp,
	); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitTx posts a signed envelope
func (c *Client) SubmitTx(
	ctx context.Context,
	env *TxEnvelope,
) (*TxResponse, error) {
	var resp TxResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tx", nil, env, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send fills in the caller, the current nonce and a fresh ID, signs tx with
// signer and submits it
func (c *Client) Send(
	ctx context.Context,
	signer Signer,
	tx ledger.Tx,
) (*TxResponse, error) {
	v, err := c.Vault(ctx)
	if err != nil {
		return nil, err
	}
	tx.Caller = signer.Address()
	acct, err := c.Account(ctx, tx.Caller)
	if err != nil {
		return nil, err
	}
	tx.Nonce = acct.Nonce
	if tx.Id == "" {
		tx.Id = uuid.NewString()
	}
	env := NewTxEnvelope(common.HexToAddress(v.Address), tx)
	if err := env.Sign(signer); err != nil {
		return nil, err
	}
	return c.SubmitTx(ctx, env)
}

// Advance moves a dev-mode server's clock forward
func (c *Client) Advance(
	ctx context.Context,
	d time.Duration,
) (time.Time, error) {
	var resp AdvanceResponse
	if err := c.do(
		ctx,
		http.MethodPost,
		"/api/v1/dev/advance",
		nil,
		AdvanceRequest{Duration: d.String()},
		&resp,
	); err != nil {
		return time.Time{}, err
	}
	return resp.Now, nil
}

// Fund credits addr on a dev-mode server and returns the new balance
func (c *Client) Fund(
	ctx context.Context,
	addr common.Address,
	amount uint64,
) (uint64, error) {
	var resp FundResponse
	if err := c.do(
		ctx,
		http.MethodPost,
		"/api/v1/dev/fund",
		nil,
		FundRequest{
			Address: addr.Hex(),
			Amount:  strconv.FormatUint(amount, 10),
		},
		&resp,
	); err != nil {
		return 0, err
	}
	return strconv.ParseUint(resp.Balance, 10, 64)
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	params url.Values,
	body any,
	out any,
	header ...*http.Header,
) error {
	u := c.baseURL.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8*maxRequestBodySize))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeErrorResponse(resp.StatusCode, data)
	}
	for _, h := range header {
		*h = resp.Header
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeErrorResponse(status int, data []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil || errResp.Error == "" {
		return &APIError{
			StatusCode: status,
			Code:       CodeInternal,
			Message:    strings.TrimSpace(string(data)),
		}
	}
	return &APIError{
		StatusCode: status,
		Code:       errResp.Error,
		Message:    errResp.Message,
	}
}
