// Package testutil provides recording fakes for tests.
package testutil

import (
	"sync"

	"github.com/frudas24/hidbridge/internal/command"
)

// FakeSink records emitted commands in wire form.
type FakeSink struct {
	mu    sync.Mutex
	Calls []string
}

// Emit records the commands.
func (f *FakeSink) Emit(cmds ...command.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range cmds {
		f.Calls = append(f.Calls, c.String())
	}
}

// Commands returns a copy of the recorded commands.
func (f *FakeSink) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}

// Reset clears recorded commands.
func (f *FakeSink) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}
