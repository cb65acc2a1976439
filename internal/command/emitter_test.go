package command_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/frudas24/hidbridge/internal/command"
	"github.com/frudas24/hidbridge/internal/testutil"
	"github.com/kataras/golog"
)

// quietLogger returns a logger that discards output.
func quietLogger() *golog.Logger {
	return golog.New().SetLevel("disable")
}

// TestEmitter_PreservesOrder verifies commands reach the transport in emit order.
func TestEmitter_PreservesOrder(t *testing.T) {
	tr := &testutil.FakeTransport{}
	e := command.NewEmitter(tr, command.Options{Logger: quietLogger()})

	e.Emit(command.Press())
	e.Emit(command.Move(1, 2), command.KeyPress("a"), command.Move(3, 4))
	e.Emit(command.Release())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	want := []string{"MOUSE_PRESS", "MOUSE_MOVE:1,2", "KEY_PRESS:a", "MOUSE_MOVE:3,4", "MOUSE_RELEASE"}
	got := tr.Commands()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// TestEmitter_FailureDoesNotStopDelivery verifies a failed send is reported and later commands still go out.
func TestEmitter_FailureDoesNotStopDelivery(t *testing.T) {
	tr := &testutil.FakeTransport{Fail: func(cmd string) error {
		if cmd == "MOUSE_LEFT" {
			return errors.New("device unreachable")
		}
		return nil
	}}

	var mu sync.Mutex
	var failed []string
	e := command.NewEmitter(tr, command.Options{
		Logger: quietLogger(),
		OnResult: func(cmd string, err error) {
			if err != nil {
				mu.Lock()
				failed = append(failed, cmd)
				mu.Unlock()
			}
		},
	})

	e.Emit(command.Click(), command.Double())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if got := tr.Commands(); len(got) != 2 || got[1] != "MOUSE_DOUBLE" {
		t.Fatalf("expected both commands delivered, got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != "MOUSE_LEFT" {
		t.Fatalf("expected MOUSE_LEFT failure reported, got %v", failed)
	}
}

// TestEmitter_EmitDoesNotBlock verifies Emit returns while the transport is stalled.
func TestEmitter_EmitDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	tr := &testutil.FakeTransport{Block: block}
	e := command.NewEmitter(tr, command.Options{Logger: quietLogger()})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			e.Emit(command.Move(i, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Emit to return while transport is blocked")
	}

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	got := tr.Commands()
	if len(got) == 0 || len(got) > 50 {
		t.Fatalf("expected between 1 and 50 commands, got %d", len(got))
	}
	dx, dy := sumMoves(t, got)
	if dx != 1225 || dy != 1225 {
		t.Fatalf("expected total motion 1225,1225, got %d,%d", dx, dy)
	}
}

// sumMoves adds up every MOUSE_MOVE in cmds.
func sumMoves(t *testing.T, cmds []string) (int, int) {
	t.Helper()
	var dx, dy int
	for _, s := range cmds {
		c, err := command.Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if c.Kind == command.KindMouseMove {
			dx += c.DX
			dy += c.DY
		}
	}
	return dx, dy
}

// TestEmitter_CoalescesMoveBacklog verifies queued moves fold together so a release is not stuck behind them.
func TestEmitter_CoalescesMoveBacklog(t *testing.T) {
	block := make(chan struct{})
	tr := &testutil.FakeTransport{Block: block}
	e := command.NewEmitter(tr, command.Options{Logger: quietLogger()})

	e.Emit(command.Press())
	for i := 0; i < 200; i++ {
		e.Emit(command.Move(1, -1))
	}
	e.Emit(command.Release())
	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	got := tr.Commands()
	if len(got) > 4 {
		t.Fatalf("expected moves coalesced, got %d commands: %v", len(got), got)
	}
	if got[0] != "MOUSE_PRESS" || got[len(got)-1] != "MOUSE_RELEASE" {
		t.Fatalf("expected press first and release last, got %v", got)
	}
	if dx, dy := sumMoves(t, got); dx != 200 || dy != -200 {
		t.Fatalf("expected total motion 200,-200, got %d,%d", dx, dy)
	}
}

// TestEmitter_CoalesceRespectsMoveBound verifies folded moves never exceed the per-command bound.
func TestEmitter_CoalesceRespectsMoveBound(t *testing.T) {
	block := make(chan struct{})
	tr := &testutil.FakeTransport{Block: block}
	e := command.NewEmitter(tr, command.Options{Logger: quietLogger()})

	e.Emit(command.Click())
	e.Emit(command.Move(command.MaxMoveDelta, 0), command.Move(1, 0))
	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	got := tr.Commands()
	want := []string{"MOUSE_LEFT", "MOUSE_MOVE:32767,0", "MOUSE_MOVE:1,0"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// TestEmitter_DropsAfterClose verifies commands emitted after Close are not delivered.
func TestEmitter_DropsAfterClose(t *testing.T) {
	tr := &testutil.FakeTransport{}
	e := command.NewEmitter(tr, command.Options{Logger: quietLogger()})
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	e.Emit(command.Click())
	if got := tr.Commands(); len(got) != 0 {
		t.Fatalf("expected no commands, got %v", got)
	}
}
