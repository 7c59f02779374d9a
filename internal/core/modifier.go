package core

import evdev "github.com/holoplot/go-evdev"

// ModifierKind distinguishes the four logical modifiers from an exact key.
type ModifierKind int

const (
	ModShift ModifierKind = iota
	ModControl
	ModAlt
	ModWindows
	ModKey
)

// Modifier is a tagged variant: the four logical modifiers match either
// physical left/right counterpart, while ModKey matches exactly one key.
type Modifier struct {
	Kind ModifierKind
	Key  Key // only meaningful when Kind == ModKey
}

func ShiftModifier() Modifier   { return Modifier{Kind: ModShift} }
func ControlModifier() Modifier { return Modifier{Kind: ModControl} }
func AltModifier() Modifier     { return Modifier{Kind: ModAlt} }
func WindowsModifier() Modifier { return Modifier{Kind: ModWindows} }
func KeyModifier(k Key) Modifier {
	return Modifier{Kind: ModKey, Key: k}
}

// Matches reports whether key satisfies this modifier.
func (m Modifier) Matches(key Key) bool {
	switch m.Kind {
	case ModShift:
		return key == evdev.KEY_LEFTSHIFT || key == evdev.KEY_RIGHTSHIFT
	case ModControl:
		return key == evdev.KEY_LEFTCTRL || key == evdev.KEY_RIGHTCTRL
	case ModAlt:
		return key == evdev.KEY_LEFTALT || key == evdev.KEY_RIGHTALT
	case ModWindows:
		return key == evdev.KEY_LEFTMETA || key == evdev.KEY_RIGHTMETA
	case ModKey:
		return key == m.Key
	default:
		return false
	}
}

// defaultKey returns the canonical physical key to emit when this logical
// modifier is required but not currently pressed.
func (m Modifier) defaultKey() Key {
	switch m.Kind {
	case ModShift:
		return evdev.KEY_LEFTSHIFT
	case ModControl:
		return evdev.KEY_LEFTCTRL
	case ModAlt:
		return evdev.KEY_LEFTALT
	case ModWindows:
		return evdev.KEY_LEFTMETA
	case ModKey:
		return m.Key
	default:
		return 0
	}
}

// KeyPress is the atomic chord emitted by the handler: a key plus the
// modifiers required to be held while it is pressed.
type KeyPress struct {
	Key       Key
	Modifiers []Modifier
}

// containsModifier reports whether any modifier in mods matches key.
func containsModifier(mods []Modifier, key Key) bool {
	for _, m := range mods {
		if m.Matches(key) {
			return true
		}
	}
	return false
}

// hasShift reports whether mods already requires Shift.
func hasShift(mods []Modifier) bool {
	for _, m := range mods {
		if m.Kind == ModShift {
			return true
		}
	}
	return false
}
