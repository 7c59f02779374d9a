package device

import (
	"testing"

	evdev "github.com/holoplot/go-evdev"
)

// CreateVirtualDevice itself needs /dev/uinput write access, so it's left
// to integration-level confidence; DefaultCapabilities is pure and worth
// covering directly.

func TestDefaultCapabilitiesIncludesKeyCodes0To255(t *testing.T) {
	caps := DefaultCapabilities()
	keys, ok := caps[evdev.EV_KEY]
	if !ok {
		t.Fatalf("expected EV_KEY capability set")
	}
	if len(keys) != 256 {
		t.Errorf("expected 256 key codes, got %d", len(keys))
	}
}

func TestDefaultCapabilitiesIncludesRelativeAxes(t *testing.T) {
	caps := DefaultCapabilities()
	rel, ok := caps[evdev.EV_REL]
	if !ok {
		t.Fatalf("expected EV_REL capability set")
	}
	want := map[evdev.EvCode]bool{0: true, 1: true, 6: true, 8: true}
	for _, code := range rel {
		if !want[code] {
			t.Errorf("unexpected relative axis code %d", code)
		}
		delete(want, code)
	}
	if len(want) != 0 {
		t.Errorf("missing expected relative axis codes: %v", want)
	}
}
