package testutil

import (
	"context"
	"sync"

	"github.com/frudas24/hidbridge/internal/command"
)

// FakeTransport implements command.Transport and records every command it receives.
type FakeTransport struct {
	mu   sync.Mutex
	Sent []string
	// Fail, when set, decides per command whether Send returns an error.
	Fail func(cmd string) error
	// Block, when non-nil, is received from before each Send completes.
	Block chan struct{}
}

// Ensure FakeTransport implements the interface.
var _ command.Transport = (*FakeTransport)(nil)

// Send records the command.
func (f *FakeTransport) Send(_ context.Context, cmd string) error {
	if f.Block != nil {
		<-f.Block
	}
	f.mu.Lock()
	f.Sent = append(f.Sent, cmd)
	fail := f.Fail
	f.mu.Unlock()
	if fail != nil {
		return fail(cmd)
	}
	return nil
}

// Commands returns a copy of the recorded commands.
func (f *FakeTransport) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Sent))
	copy(out, f.Sent)
	return out
}
