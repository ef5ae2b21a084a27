// Copyright 2025 Tom Barlow
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

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event kinds.
const (
	EventConfigure = "configure"
	EventStart     = "start"
	EventStop      = "stop"
	EventShutdown  = "shutdown"
)

// Event is one lifecycle transition attempt.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Event     string    `json:"event"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

func newEvent(component, kind string, err error) Event {
	e := Event{
		Timestamp: time.Now(),
		Component: component,
		Event:     kind,
		Success:   err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// EventLog appends lifecycle events to a file as JSON lines.
type EventLog struct {
	path string

	mu  sync.Mutex
	err error
}

var _ Observer = (*EventLog)(nil)

// NewEventLog creates an event log writing to path.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Record implements Observer. Write failures are kept and reported by Err
// so a broken log never fails a transition.
func (l *EventLog) Record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(e); err != nil && l.err == nil {
		l.err = err
	}
}

// Err returns the first write error, if any.
func (l *EventLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *EventLog) write(e Event) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
