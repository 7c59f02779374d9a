package dispatch

import (
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/keyremapd/keyremapd/internal/core"
)

type fakeWriter struct {
	events []evdev.InputEvent
	failOn int
	writes int
}

func (f *fakeWriter) WriteOne(e *evdev.InputEvent) error {
	f.writes++
	if f.failOn != 0 && f.writes == f.failOn {
		return fmt.Errorf("injected failure")
	}
	f.events = append(f.events, *e)
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func TestDispatchKeyEventWritesKeyThenSyn(t *testing.T) {
	w := &fakeWriter{}
	d := NewActionDispatcher(w, testLogger())

	if err := d.Dispatch(core.KeyEventAction{Key: evdev.KEY_A, Value: core.Press}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(w.events) != 2 {
		t.Fatalf("expected 2 events (key + syn), got %d", len(w.events))
	}
	if w.events[0].Type != evdev.EV_KEY || w.events[0].Code != evdev.KEY_A || w.events[0].Value != int32(core.Press) {
		t.Errorf("unexpected key event: %+v", w.events[0])
	}
	if w.events[1].Type != evdev.EV_SYN {
		t.Errorf("expected trailing syn, got %+v", w.events[1])
	}
}

func TestDispatchRelativeEventWritesRelThenSyn(t *testing.T) {
	w := &fakeWriter{}
	d := NewActionDispatcher(w, testLogger())

	if err := d.Dispatch(core.RelativeEventAction{Code: 8, Value: -1}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(w.events) != 2 || w.events[0].Type != evdev.EV_REL || w.events[1].Type != evdev.EV_SYN {
		t.Errorf("unexpected events: %+v", w.events)
	}
}

func TestDispatchMouseMovementCollectionSyncsOnce(t *testing.T) {
	w := &fakeWriter{}
	d := NewActionDispatcher(w, testLogger())

	action := core.MouseMovementEventCollectionAction{
		Events: []core.RelativeEventAction{
			{Code: 0, Value: 5},
			{Code: 1, Value: -3},
		},
	}
	if err := d.Dispatch(action); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(w.events) != 3 {
		t.Fatalf("expected 2 rel events + 1 syn, got %d", len(w.events))
	}
	if w.events[0].Code != 0 || w.events[1].Code != 1 {
		t.Errorf("unexpected event order: %+v", w.events)
	}
	if w.events[2].Type != evdev.EV_SYN {
		t.Errorf("expected a single trailing syn, got %+v", w.events[2])
	}
}

func TestDispatchInputEventPassesThroughVerbatim(t *testing.T) {
	w := &fakeWriter{}
	d := NewActionDispatcher(w, testLogger())

	opaque := evdev.InputEvent{Type: evdev.EV_MSC, Code: 4, Value: 42}
	if err := d.Dispatch(core.InputEventAction{Event: opaque}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(w.events) != 2 || w.events[0] != opaque {
		t.Errorf("expected verbatim passthrough, got %+v", w.events)
	}
}

func TestDispatchDelaySleeps(t *testing.T) {
	w := &fakeWriter{}
	d := NewActionDispatcher(w, testLogger())

	start := time.Now()
	if err := d.Dispatch(core.DelayAction{Duration: 15 * time.Millisecond}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected dispatch to block for the delay, elapsed %v", elapsed)
	}
}

func TestDispatchCommandEmptyArgvFails(t *testing.T) {
	w := &fakeWriter{}
	d := NewActionDispatcher(w, testLogger())

	if err := d.Dispatch(core.CommandAction{Argv: nil}); err == nil {
		t.Errorf("expected an error for an empty argv")
	}
}

func TestDispatchCommandStartsDetached(t *testing.T) {
	w := &fakeWriter{}
	d := NewActionDispatcher(w, testLogger())

	if err := d.Dispatch(core.CommandAction{Argv: []string{"/bin/true"}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the Wait goroutine reap the child
}

func TestDispatchPropagatesWriteFailure(t *testing.T) {
	w := &fakeWriter{failOn: 1}
	d := NewActionDispatcher(w, testLogger())

	if err := d.Dispatch(core.KeyEventAction{Key: evdev.KEY_A, Value: core.Press}); err == nil {
		t.Errorf("expected write failure to propagate")
	}
}
