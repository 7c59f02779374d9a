package device

import (
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/keyremapd/keyremapd/internal/core"
)

func TestTranslateEventKey(t *testing.T) {
	event := translateEvent(evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 1})
	keyEvent, isKeyEvent := event.(core.KeyInputEvent)
	if !isKeyEvent {
		t.Fatalf("expected KeyInputEvent, got %T", event)
	}
	if keyEvent.KeyEvent.Key != evdev.KEY_A || keyEvent.KeyEvent.Value != core.Press {
		t.Errorf("unexpected key event: %+v", keyEvent.KeyEvent)
	}
}

func TestTranslateEventRelative(t *testing.T) {
	event := translateEvent(evdev.InputEvent{Type: evdev.EV_REL, Code: 8, Value: -1})
	relEvent, isRelEvent := event.(core.RelativeInputEvent)
	if !isRelEvent {
		t.Fatalf("expected RelativeInputEvent, got %T", event)
	}
	if relEvent.RelativeEvent.Code != 8 || relEvent.RelativeEvent.Value != -1 {
		t.Errorf("unexpected relative event: %+v", relEvent.RelativeEvent)
	}
}

func TestTranslateEventPassesThroughOther(t *testing.T) {
	event := translateEvent(evdev.InputEvent{Type: evdev.EV_MSC, Code: 4, Value: 0})
	if _, isOther := event.(core.OtherInputEvent); !isOther {
		t.Errorf("expected OtherInputEvent, got %T", event)
	}
}

func TestIsDeviceClosedError(t *testing.T) {
	cases := map[string]bool{
		"file already closed":   true,
		"bad file descriptor":   true,
		"no such device":        true,
		"some other read error": false,
	}
	for msg, want := range cases {
		if got := isDeviceClosedError(errString(msg)); got != want {
			t.Errorf("isDeviceClosedError(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }

// fakeBatchDevice feeds a fixed sequence of InputEvent pointers to ReadOne,
// then blocks until closed, the same shape readDeviceLoop's real source
// (*evdev.InputDevice) exhibits once the real device stops producing.
type fakeBatchDevice struct {
	events []evdev.InputEvent
	idx    int
	closed chan struct{}
}

func newFakeBatchDevice(events []evdev.InputEvent) *fakeBatchDevice {
	return &fakeBatchDevice{events: events, closed: make(chan struct{})}
}

func (d *fakeBatchDevice) ReadOne() (*evdev.InputEvent, error) {
	if d.idx < len(d.events) {
		ev := d.events[d.idx]
		d.idx++
		return &ev, nil
	}
	<-d.closed
	return nil, errString("file already closed")
}

func (d *fakeBatchDevice) close() { close(d.closed) }

func TestReadDeviceLoopBatchesEventsBetweenSyn(t *testing.T) {
	dev := newFakeBatchDevice([]evdev.InputEvent{
		{Type: evdev.EV_REL, Code: 0, Value: 3},
		{Type: evdev.EV_REL, Code: 1, Value: 4},
		{Type: evdev.EV_SYN},
	})
	eventCh := make(chan []core.Event, 1)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go readDeviceLoop(dev, eventCh, errCh, done)

	select {
	case batch := <-eventCh:
		if len(batch) != 2 {
			t.Fatalf("expected a single 2-event batch, got %d events", len(batch))
		}
		rel0, ok := batch[0].(core.RelativeInputEvent)
		if !ok || rel0.RelativeEvent.Value != 3 {
			t.Errorf("unexpected first batched event: %+v", batch[0])
		}
		rel1, ok := batch[1].(core.RelativeInputEvent)
		if !ok || rel1.RelativeEvent.Value != 4 {
			t.Errorf("unexpected second batched event: %+v", batch[1])
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for batch")
	}

	dev.close()
}

func TestReadDeviceLoopSkipsEmptyBatchOnBareSyn(t *testing.T) {
	dev := newFakeBatchDevice([]evdev.InputEvent{
		{Type: evdev.EV_SYN},
		{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 1},
		{Type: evdev.EV_SYN},
	})
	eventCh := make(chan []core.Event, 1)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go readDeviceLoop(dev, eventCh, errCh, done)

	select {
	case batch := <-eventCh:
		if len(batch) != 1 {
			t.Fatalf("expected a single 1-event batch, got %d events", len(batch))
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for batch")
	}

	dev.close()
}
