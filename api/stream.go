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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/ledger"
)

const (
	streamBufferSize  = 64
	maxStreamLineSize = 1 << 20
)

var errStreamOverflow = errors.New("event stream buffer full")

// streamSubscriber queues bus events for one stream client. A full queue
// fails delivery, which makes the bus drop the client.
type streamSubscriber struct {
	ch     chan event.Event
	closed chan struct{}
	once   sync.Once
}

func newStreamSubscriber() *streamSubscriber {
	return &streamSubscriber{
		ch:     make(chan event.Event, streamBufferSize),
		closed: make(chan struct{}),
	}
}

func (s *streamSubscriber) Deliver(evt event.Event) error {
	select {
	case <-s.closed:
		return event.ErrSubscriberClosed
	default:
	}
	select {
	case s.ch <- evt:
		return nil
	default:
		return errStreamOverflow
	}
}

func (s *streamSubscriber) Close() {
	s.once.Do(func() { close(s.closed) })
}

// streamEventTypes reads the type filter. No filter selects every type.
func streamEventTypes(r *http.Request) ([]event.EventType, error) {
	var ret []event.EventType
	for _, v := range r.URL.Query()["type"] {
		for t := range strings.SplitSeq(v, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			evtType := event.EventType(t)
			if !slices.Contains(ledger.EventTypes, evtType) {
				return nil, fmt.Errorf("unknown event type: %q", t)
			}
			if !slices.Contains(ret, evtType) {
				ret = append(ret, evtType)
			}
		}
	}
	if len(ret) == 0 {
		return slices.Clone(ledger.EventTypes), nil
	}
	return ret, nil
}

// handleEventStream handles GET /api/v1/events/stream as server-sent
// events. Events committed after the request are delivered in commit
// order; a client that falls behind is disconnected.
func (s *Server) handleEventStream(
	w http.ResponseWriter,
	r *http.Request,
) {
	eventTypes, err := streamEventTypes(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	// Subscribe before the headers go out so a client that has seen the
	// response cannot miss a later commit
	bus := s.node.EventBus()
	sub := newStreamSubscriber()
	subIds := make([]event.EventSubscriberId, len(eventTypes))
	for i, evtType := range eventTypes {
		subIds[i] = bus.RegisterSubscriber(evtType, sub)
	}
	defer func() {
		for i, evtType := range eventTypes {
			bus.Unsubscribe(evtType, subIds[i])
		}
		sub.Close()
	}()
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("event stream unsupported", "error", err)
		return
	}
	s.mu.Lock()
	done := s.streamDone
	s.mu.Unlock()
	heartbeat := time.NewTicker(s.config.StreamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-sub.closed:
			s.logger.Debug(
				"event stream dropped",
				"request_id", RequestIdFromContext(r.Context()),
			)
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case evt := <-sub.ch:
			if err := writeStreamEvent(w, evt); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeStreamEvent(w io.Writer, evt event.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(StreamEvent{
		Type: string(evt.Type),
		Time: evt.Timestamp.UTC(),
		Data: data,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, msg)
	return err
}

// StreamEvents follows the server's event stream and calls fn for each
// event until ctx is done, fn returns an error or the server closes the
// stream. The client timeout does not apply.
func (c *Client) StreamEvents(
	ctx context.Context,
	eventTypes []string,
	fn func(StreamEvent) error,
) error {
	u := c.baseURL.JoinPath("/api/v1/events/stream")
	if len(eventTypes) > 0 {
		u.RawQuery = url.Values{"type": eventTypes}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	httpClient := *c.httpClient
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxRequestBodySize))
		return decodeErrorResponse(resp.StatusCode, data)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxStreamLineSize)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			if data.Len() == 0 {
				continue
			}
			var evt StreamEvent
			if err := json.Unmarshal(data.Bytes(), &evt); err != nil {
				return fmt.Errorf("decode stream event: %w", err)
			}
			data.Reset()
			if err := fn(evt); err != nil {
				return err
			}
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" ")))
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}
