/*
Copyright 2025 The Urumi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package audit keeps a bounded in-memory trail of store lifecycle events.
// The log is an explicitly owned object constructed at process start and
// injected into every component that records events.
package audit

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Action identifies a lifecycle event kind.
type Action string

const (
	ActionStoreCreated       Action = "store.created"
	ActionStoreDeleted       Action = "store.deleted"
	ActionProvisioningFailed Action = "store.provisioning.failed"
)

// Event is a single audit record.
type Event struct {
	Timestamp string `json:"timestamp"`
	Action    Action `json:"action"`
	StoreID   string `json:"storeId,omitempty"`
	StoreName string `json:"storeName,omitempty"`
	Engine    string `json:"engine,omitempty"`
	Reason    string `json:"reason,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// DefaultCapacity is the number of events retained before the oldest are
// evicted.
const DefaultCapacity = 1000

// Log is a thread-safe bounded event trail.
type Log struct {
	logger   logr.Logger
	capacity int

	mu     sync.Mutex
	events []Event
}

// NewLog returns a Log retaining at most capacity events. A capacity of zero
// or less selects DefaultCapacity.
func NewLog(logger logr.Logger, capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{logger: logger, capacity: capacity}
}

// Record stamps and appends an event, evicting the oldest entry when the
// capacity is exceeded. Each event is also echoed to the process log.
func (l *Log) Record(event Event) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)

	l.mu.Lock()
	l.events = append(l.events, event)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	l.mu.Unlock()

	l.logger.Info("audit event",
		"action", event.Action,
		"storeId", event.StoreID,
		"storeName", event.StoreName,
		"engine", event.Engine,
		"reason", event.Reason,
		"ip", event.IP,
	)
}

// Tail returns up to limit events, newest first.
func (l *Log) Tail(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, 0, limit)
	for i := len(l.events) - 1; i >= len(l.events)-limit; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// TailForStore returns every retained event for the given store id, newest
// first.
func (l *Log) TailForStore(storeID string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0)
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].StoreID == storeID {
			out = append(out, l.events[i])
		}
	}
	return out
}
