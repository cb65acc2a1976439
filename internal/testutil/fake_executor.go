package testutil

import (
	"context"
	"sync"

	"github.com/frudas24/hidbridge/internal/transport"
)

// Call records a single executor request.
type Call struct {
	Name    string
	Text    string
	Jiggler transport.Jiggler
}

// FakeExecutor implements transport.Executor and records calls for tests.
type FakeExecutor struct {
	mu    sync.Mutex
	Calls []Call
	Err   error
	// Done receives one value per finished call when non-nil.
	Done chan string
}

// Ensure FakeExecutor implements the interface.
var _ transport.Executor = (*FakeExecutor)(nil)

// Send records a command.
func (f *FakeExecutor) Send(_ context.Context, cmd string) error {
	return f.record(Call{Name: "Send", Text: cmd})
}

// RunScript records a script.
func (f *FakeExecutor) RunScript(_ context.Context, script string) error {
	return f.record(Call{Name: "RunScript", Text: script})
}

// SetJiggler records a jiggler change.
func (f *FakeExecutor) SetJiggler(_ context.Context, j transport.Jiggler) error {
	return f.record(Call{Name: "SetJiggler", Jiggler: j})
}

// Status returns a connected station.
func (f *FakeExecutor) Status(context.Context) (transport.DeviceStatus, error) {
	return transport.DeviceStatus{WifiMode: "Station", Connected: true}, f.Err
}

// Recorded returns a copy of the calls.
func (f *FakeExecutor) Recorded() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.Calls))
	copy(out, f.Calls)
	return out
}

func (f *FakeExecutor) record(c Call) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, c)
	err := f.Err
	f.mu.Unlock()
	if f.Done != nil {
		f.Done <- c.Name
	}
	return err
}
