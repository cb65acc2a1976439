// Package activity keeps a short, most-recent-first log of command results.
package activity

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is how many entries the log keeps.
const DefaultCapacity = 50

// Entry is one log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Error   bool      `json:"error,omitempty"`
}

// Log is a bounded, concurrency-safe activity log.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	now     func() time.Time
}

// New returns a log keeping at most capacity entries. Non-positive uses DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{max: capacity, now: time.Now}
}

// SetNowFunc overrides the clock used for entry timestamps.
func (l *Log) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		l.mu.Lock()
		l.now = fn
		l.mu.Unlock()
	}
}

// Add prepends an entry, dropping the oldest past capacity.
func (l *Log) Add(msg string, isErr bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := Entry{Time: l.now(), Message: msg, Error: isErr}
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
}

// Addf formats and adds a non-error entry.
func (l *Log) Addf(format string, args ...any) {
	l.Add(fmt.Sprintf(format, args...), false)
}

// Record logs a command result: "Command sent: X" or "Error: ...".
func (l *Log) Record(cmd string, err error) {
	if err != nil {
		l.Add(fmt.Sprintf("Error: %s: %v", cmd, err), true)
		return
	}
	l.Add("Command sent: "+cmd, false)
}

// Entries returns a copy of the log, most recent first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
