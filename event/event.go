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

// Package event fans committed vault and ledger events out to in-process
// and streaming subscribers.
package event

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventQueueSize is the buffer of a channel subscriber
const EventQueueSize = 20

const (
	kindChannel = "in-memory"
	kindRemote  = "remote"
)

var ErrSubscriberClosed = errors.New("subscriber closed")

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// Subscriber receives events from the bus. Deliver must not block; an
// error or panic unregisters the subscriber. Close must be idempotent.
type Subscriber interface {
	Deliver(Event) error
	Close()
}

type registration struct {
	sub  Subscriber
	kind string
}

type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]registration
	metrics     *eventMetrics
	logger      *slog.Logger
	lastSubId   EventSubscriberId
	handlerWg   sync.WaitGroup
	mu          sync.RWMutex
	stopped     bool
}

func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]registration),
		logger:      logger.With("component", "event"),
	}
	if promRegistry != nil {
		e.initMetrics(promRegistry)
	}
	return e
}

// channelSubscriber drops events instead of blocking when its buffer is
// full
type channelSubscriber struct {
	ch     chan Event
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

func (c *channelSubscriber) Deliver(evt Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.ch <- evt:
	default:
		c.logger.Warn(
			"subscriber buffer full, dropping event",
			"type", evt.Type,
		)
	}
	return nil
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Subscribe returns a buffered channel of events of the given type. The
// channel is closed by Unsubscribe or Stop.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	sub := &channelSubscriber{
		ch:     make(chan Event, EventQueueSize),
		logger: e.logger,
	}
	return e.add(eventType, sub, kindChannel), sub.ch
}

// SubscribeFunc runs handlerFunc on its own goroutine for each event of the
// given type
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	e.handlerWg.Add(1)
	go func() {
		defer e.handlerWg.Done()
		for evt := range evtCh {
			handlerFunc(evt)
		}
	}()
	return subId
}

// RegisterSubscriber adds a subscriber that forwards events off the
// process, such as an API stream
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	return e.add(eventType, sub, kindRemote)
}

func (e *EventBus) add(
	eventType EventType,
	sub Subscriber,
	kind string,
) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubId++
	if e.stopped {
		sub.Close()
		return e.lastSubId
	}
	subs, ok := e.subscribers[eventType]
	if !ok {
		subs = make(map[EventSubscriberId]registration)
		e.subscribers[eventType] = subs
	}
	subs[e.lastSubId] = registration{sub: sub, kind: kind}
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), kind).Inc()
	}
	return e.lastSubId
}

// Unsubscribe removes and closes a subscriber. Unknown ids are ignored.
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	reg, ok := e.subscribers[eventType][subId]
	if ok {
		delete(e.subscribers[eventType], subId)
		if len(e.subscribers[eventType]) == 0 {
			delete(e.subscribers, eventType)
		}
		if e.metrics != nil {
			e.metrics.subscribers.WithLabelValues(
				string(eventType),
				reg.kind,
			).Dec()
		}
	}
	e.mu.Unlock()
	if ok {
		reg.sub.Close()
	}
}

// Publish delivers evt to every subscriber of eventType on the calling
// goroutine
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	targets := make(map[EventSubscriberId]registration, len(e.subscribers[eventType]))
	for id, reg := range e.subscribers[eventType] {
		targets[id] = reg
	}
	e.mu.RUnlock()
	for id, reg := range targets {
		err := deliver(reg.sub, evt)
		if err == nil {
			continue
		}
		e.Unsubscribe(eventType, id)
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(
				string(eventType),
				reg.kind,
			).Inc()
		}
		e.logger.Debug(
			"dropped subscriber after failed delivery",
			"type", eventType,
			"error", err,
		)
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

func deliver(sub Subscriber, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.Deliver(evt)
}

// Stop closes every subscriber and waits for SubscribeFunc handlers to
// drain. Later subscriptions are closed immediately.
func (e *EventBus) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	subs := e.subscribers
	e.subscribers = make(map[EventType]map[EventSubscriberId]registration)
	e.mu.Unlock()
	for _, byId := range subs {
		for _, reg := range byId {
			reg.sub.Close()
		}
	}
	e.handlerWg.Wait()
	if e.metrics != nil {
		e.metrics.subscribers.Reset()
	}
}
