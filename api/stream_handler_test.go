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
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/internal/test/testutil"
	"github.com/blinklabs-io/bequest/ledger"
)

func newStreamTestLedger(t *testing.T) *ledger.LedgerState {
	t.Helper()
	ls, err := ledger.NewLedgerState(ledger.LedgerStateConfig{
		Deployer: common.HexToAddress("0x00000000000000000000000000000000000a11ce"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ls.Close())
	})
	return ls
}

// stallingWriter blocks the first body write until released
type stallingWriter struct {
	header    http.Header
	mu        sync.Mutex
	body      bytes.Buffer
	flushed   chan struct{}
	flushOnce sync.Once
	writing   chan struct{}
	writeOnce sync.Once
	release   chan struct{}
}

func newStallingWriter() *stallingWriter {
	return &stallingWriter{
		header:  make(http.Header),
		flushed: make(chan struct{}),
		writing: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (w *stallingWriter) Header() http.Header { return w.header }

func (w *stallingWriter) WriteHeader(int) {}

func (w *stallingWriter) Write(p []byte) (int, error) {
	w.writeOnce.Do(func() { close(w.writing) })
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.body.Write(p)
}

func (w *stallingWriter) Flush() {
	w.flushOnce.Do(func() { close(w.flushed) })
}

func (w *stallingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.body.String()
}

func depositEvent(amount uint64) event.Event {
	return event.NewEvent(
		ledger.DepositEventType,
		ledger.DepositEvent{Amount: amount},
	)
}

func TestEventStreamOverflowDisconnects(t *testing.T) {
	ls := newStreamTestLedger(t)
	s := New(Config{}, ls, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequestWithContext(
		ctx,
		http.MethodGet,
		"/api/v1/events/stream",
		nil,
	)
	w := newStallingWriter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleEventStream(w, req)
	}()
	testutil.RequireReceive(t, w.flushed, time.Second, "stream headers")

	bus := ls.EventBus()
	bus.Publish(ledger.DepositEventType, depositEvent(1))
	testutil.RequireReceive(t, w.writing, time.Second, "first event write")
	// The handler is stuck writing, so the queue fills and then overflows
	for i := range streamBufferSize + 1 {
		bus.Publish(ledger.DepositEventType, depositEvent(uint64(i+2))) //nolint:gosec
	}
	close(w.release)
	testutil.RequireReceive(t, done, 2*time.Second, "stream to end after overflow")
	written := strings.Count(w.String(), "event: ")
	assert.GreaterOrEqual(t, written, 1)
	assert.LessOrEqual(t, written, streamBufferSize+1)

	// The dropped client no longer receives anything
	bus.Publish(ledger.DepositEventType, depositEvent(99))
	assert.Equal(t, written, strings.Count(w.String(), "event: "))
}

func TestEventStreamHeartbeat(t *testing.T) {
	ls := newStreamTestLedger(t)
	s := New(Config{StreamHeartbeat: 20 * time.Millisecond}, ls, nil)
	assert.Equal(t, DefaultStreamHeartbeat, New(Config{}, ls, nil).config.StreamHeartbeat)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		ts.URL+"/api/v1/events/stream",
		nil,
	)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scanner := bufio.NewScanner(resp.Body)
	pings := 0
	for pings < 2 && scanner.Scan() {
		if scanner.Text() == ": ping" {
			pings++
		}
	}
	require.Equal(t, 2, pings, "heartbeats not received: %v", scanner.Err())
}
