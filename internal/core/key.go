// Package core implements the stateful event transformation pipeline of
// the remap daemon: modifier tracking, multi-purpose key timing, nested
// override keymaps, relative-event disguising, and action emission.
package core

import (
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// Key is an opaque scancode, the same representation evdev uses on the wire.
type Key = evdev.EvCode

// KeyValue is the kernel's key-event value: release, press, or autorepeat.
type KeyValue int32

const (
	Release KeyValue = 0
	Press   KeyValue = 1
	Repeat  KeyValue = 2
)

// NewKeyValue validates a raw evdev value, returning ok=false for anything
// other than 0/1/2. The device layer should never produce such a value;
// callers treat a false ok as a program invariant violation.
func NewKeyValue(v int32) (KeyValue, bool) {
	switch v {
	case int32(Release), int32(Press), int32(Repeat):
		return KeyValue(v), true
	default:
		return 0, false
	}
}

func (v KeyValue) String() string {
	switch v {
	case Release:
		return "release"
	case Press:
		return "press"
	case Repeat:
		return "repeat"
	default:
		return fmt.Sprintf("KeyValue(%d)", int32(v))
	}
}

// IsPressed reports whether v represents a key that is down (press or repeat).
func IsPressed(v KeyValue) bool {
	return v == Press || v == Repeat
}

// KeyEvent is a (key, value) pair as read from or about to be written to evdev.
type KeyEvent struct {
	Key   Key
	Value KeyValue
}

// NewKeyEvent builds a KeyEvent from raw evdev (code, value), panicking if
// value is not 0/1/2 — the device layer guarantees this never happens.
func NewKeyEvent(code evdev.EvCode, value int32) KeyEvent {
	v, ok := NewKeyValue(value)
	if !ok {
		panic(fmt.Sprintf("unexpected key event value: %d", value))
	}
	return KeyEvent{Key: code, Value: v}
}

// RelativeEvent is one relative-axis sample (mouse motion, wheel, ...).
type RelativeEvent struct {
	Code  evdev.EvCode
	Value int32
}

// DisguisedEventOffsetter places synthesized scancodes for disguised
// relative events above every real scancode, so config authors can name
// them as aliases without ever colliding with a real kernel key.
const DisguisedEventOffsetter = 59974

// ModifierKeys is the distinguished subset of keys tracked as modifiers.
var ModifierKeys = map[Key]struct{}{
	evdev.KEY_LEFTSHIFT:  {},
	evdev.KEY_RIGHTSHIFT: {},
	evdev.KEY_LEFTCTRL:   {},
	evdev.KEY_RIGHTCTRL:  {},
	evdev.KEY_LEFTALT:    {},
	evdev.KEY_RIGHTALT:   {},
	evdev.KEY_LEFTMETA:   {},
	evdev.KEY_RIGHTMETA:  {},
}

func isModifierKey(k Key) bool {
	_, ok := ModifierKeys[k]
	return ok
}
