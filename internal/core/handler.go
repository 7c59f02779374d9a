package core

import (
	"fmt"
	"io"
	"log"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// OverrideTimer is the one-shot timer collaborator that fires an
// OverrideTimeoutEvent when a nested override's timeout expires. The
// concrete implementation (internal/device, backed by a Linux timerfd) is
// owned by the handler for its whole lifetime, so rearming is atomic with
// the state changes that motivate it.
type OverrideTimer interface {
	// Set arms the timer to fire once after d.
	Set(d time.Duration) error
	// Unset disarms the timer. Unsetting an already-disarmed timer is a no-op.
	Unset() error
}

// ModmapEntry is a per-device/per-application key substitution table,
// consulted before keymap resolution.
type ModmapEntry struct {
	Remap       map[Key]ModmapAction
	Application *ApplicationMatcher
}

// Config is the read-only snapshot OnEvents consumes for one call. It is
// never mutated by EventHandler.
type Config struct {
	Modmap           []ModmapEntry
	KeymapTable      map[Key][]OverrideEntry
	VirtualModifiers map[Key]struct{}
}

// Event is one item fed to OnEvents: a key event, a relative event, an
// opaque passthrough event, or the nested-override timer firing.
type Event interface {
	isEvent()
}

type KeyInputEvent struct{ KeyEvent KeyEvent }
type RelativeInputEvent struct{ RelativeEvent RelativeEvent }
type OtherInputEvent struct{ Event evdev.InputEvent }
type OverrideTimeoutEvent struct{}

func (KeyInputEvent) isEvent()        {}
func (RelativeInputEvent) isEvent()   {}
func (OtherInputEvent) isEvent()      {}
func (OverrideTimeoutEvent) isEvent() {}

// EventHandler turns a batch of raw input events into an ordered Action
// list. It is single-threaded cooperative: OnEvents must never be called
// concurrently with itself.
type EventHandler struct {
	modifiers         map[Key]struct{}
	extraModifiers    map[Key]struct{}
	pressedKeys       map[Key]Key
	applicationClient WMClient
	applicationCache  *string
	multiPurposeKeys  map[Key]*multiPurposeKeyState

	overrideRemaps     []map[Key][]OverrideEntry
	overrideTimeoutKey *Key
	overrideTimer      OverrideTimer

	// keymapConsumed marks a physical key whose PRESS was resolved by
	// find_keymap instead of being emitted as a raw key event. The
	// matching RELEASE must not leak out as a stray emission of a key
	// the downstream consumer never saw pressed.
	keymapConsumed map[Key]struct{}

	mode          string
	markSet       bool
	escapeNextKey bool
	keypressDelay time.Duration

	actions []Action

	now    func() time.Time
	logger *log.Logger
}

// NewEventHandler builds an EventHandler. mode is the starting mode name;
// keypressDelay is injected between synthetic chords to pace sluggish
// consumer applications. A nil logger discards debug output, matching the
// teacher's own io.Discard-by-default idiom.
func NewEventHandler(timer OverrideTimer, mode string, keypressDelay time.Duration, applicationClient WMClient, logger *log.Logger) *EventHandler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &EventHandler{
		modifiers:         make(map[Key]struct{}),
		extraModifiers:    make(map[Key]struct{}),
		pressedKeys:       make(map[Key]Key),
		applicationClient: applicationClient,
		multiPurposeKeys:  make(map[Key]*multiPurposeKeyState),
		keymapConsumed:    make(map[Key]struct{}),
		overrideTimer:     timer,
		mode:              mode,
		keypressDelay:     keypressDelay,
		now:               time.Now,
		logger:            logger,
	}
}

// SetClock overrides the handler's time source. Tests use this to make
// multi-purpose-key timeouts deterministic.
func (h *EventHandler) SetClock(now func() time.Time) {
	h.now = now
}

// Mode returns the currently active mode name.
func (h *EventHandler) Mode() string { return h.mode }

// OnEvents processes a batch of events atomically and returns the ordered
// Action list the dispatcher should perform, draining the handler's
// internal buffer. Relative events with code <= 2 (pointer X/Y/Z) are
// coalesced into one trailing MouseMovementEventCollection so the kernel
// never sees them interleaved with synchronization points.
func (h *EventHandler) OnEvents(events []Event, config *Config) ([]Action, error) {
	var mouseCollection []RelativeEventAction
	for _, event := range events {
		switch e := event.(type) {
		case KeyInputEvent:
			if _, err := h.onKeyEvent(e.KeyEvent, config); err != nil {
				return nil, err
			}
		case RelativeInputEvent:
			if err := h.onRelativeEvent(e.RelativeEvent, &mouseCollection, config); err != nil {
				return nil, err
			}
		case OtherInputEvent:
			h.sendAction(InputEventAction{Event: e.Event})
		case OverrideTimeoutEvent:
			if err := h.timeoutOverride(); err != nil {
				return nil, err
			}
		}
	}
	if len(mouseCollection) > 0 {
		h.sendAction(MouseMovementEventCollectionAction{Events: mouseCollection})
	}
	actions := h.actions
	h.actions = nil
	return actions, nil
}

func (h *EventHandler) onKeyEvent(event KeyEvent, config *Config) (bool, error) {
	h.applicationCache = nil // expire cache
	key := event.Key
	h.logger.Printf("=> %s: %v", event.Value, key)

	var keyValues []KeyEvent
	if action, ok := h.findModmap(config, key); ok {
		var err error
		keyValues, err = h.dispatchKeys(action, key, event.Value)
		if err != nil {
			return false, err
		}
	} else {
		keyValues = []KeyEvent{{Key: key, Value: event.Value}}
	}

	h.maintainPressedKeys(key, event.Value, &keyValues)
	if len(h.multiPurposeKeys) > 0 {
		keyValues = h.flushTimeoutKeys(keyValues)
	}

	sendOriginalRelativeEvent := false
	for _, kv := range keyValues {
		k, v := kv.Key, kv.Value
		if _, ok := config.VirtualModifiers[k]; ok {
			h.updateModifier(k, v)
			continue
		} else if isModifierKey(k) {
			h.updateModifier(k, v)
		} else if IsPressed(v) {
			if h.escapeNextKey {
				h.escapeNextKey = false
			} else {
				actions, err := h.findKeymap(config, k)
				if err != nil {
					return false, err
				}
				if actions != nil {
					if v == Press {
						h.keymapConsumed[k] = struct{}{}
					}
					if err := h.dispatchActions(actions, k); err != nil {
						return false, err
					}
					continue
				}
			}
		} else if v == Release {
			if _, ok := h.keymapConsumed[k]; ok {
				delete(h.keymapConsumed, k)
				continue
			}
		}
		if k >= DisguisedEventOffsetter && k == event.Key && v == event.Value {
			sendOriginalRelativeEvent = true
			continue
		}
		h.sendKey(k, v)
	}

	return sendOriginalRelativeEvent, nil
}

func (h *EventHandler) onRelativeEvent(event RelativeEvent, mouseCollection *[]RelativeEventAction, config *Config) error {
	var code Key
	switch {
	case event.Value > 0:
		code = Key(event.Code)*2 + DisguisedEventOffsetter
	case event.Value < 0:
		code = Key(event.Code)*2 + 1 + DisguisedEventOffsetter
	default:
		h.logger.Printf("relative event with value 0: %+v", event)
		code = Key(event.Code)*2 + DisguisedEventOffsetter
	}

	sendOriginal, err := h.onKeyEvent(KeyEvent{Key: code, Value: Press}, config)
	if err != nil {
		return err
	}
	if sendOriginal {
		action := RelativeEventAction{Code: event.Code, Value: event.Value}
		if event.Code <= 2 {
			*mouseCollection = append(*mouseCollection, action)
		} else {
			h.sendAction(action)
		}
	}

	_, err = h.onKeyEvent(KeyEvent{Key: code, Value: Release}, config)
	return err
}

func (h *EventHandler) timeoutOverride() error {
	if h.overrideTimeoutKey != nil {
		h.sendKey(*h.overrideTimeoutKey, Press)
		h.sendKey(*h.overrideTimeoutKey, Release)
	}
	return h.removeOverride()
}

func (h *EventHandler) removeOverride() error {
	if err := h.overrideTimer.Unset(); err != nil {
		return fmt.Errorf("unset override timer: %w", err)
	}
	h.overrideRemaps = nil
	h.overrideTimeoutKey = nil
	return nil
}

func (h *EventHandler) sendKeys(keys []Key, value KeyValue) {
	for _, k := range keys {
		h.sendKey(k, value)
	}
}

func (h *EventHandler) sendKey(key Key, value KeyValue) {
	h.sendAction(KeyEventAction{Key: key, Value: value})
}

func (h *EventHandler) sendAction(a Action) {
	h.actions = append(h.actions, a)
}

// maintainPressedKeys remembers the emitted key for a physical press so a
// later release of the same physical key always pairs with it, even if the
// modmap/keymap resolution for that key changes in between. It only
// applies to a single unambiguous emission (multi-purpose expansion, which
// can emit zero or two events, is left alone).
func (h *EventHandler) maintainPressedKeys(key Key, value KeyValue, events *[]KeyEvent) {
	if len(*events) != 1 || value != (*events)[0].Value {
		return
	}
	if value == Press {
		h.pressedKeys[key] = (*events)[0].Key
	} else {
		if original, ok := h.pressedKeys[key]; ok {
			(*events)[0].Key = original
		}
		if value == Release {
			delete(h.pressedKeys, key)
		}
	}
}

func (h *EventHandler) dispatchKeys(action ModmapAction, key Key, value KeyValue) ([]KeyEvent, error) {
	switch a := action.(type) {
	case KeySubstitution:
		return []KeyEvent{{Key: a.Key, Value: value}}, nil

	case MultiPurposeKey:
		switch value {
		case Press:
			h.multiPurposeKeys[key] = newMultiPurposeKeyState(a.Held, a.Alone, a.AloneTimeout, h.now())
			return nil, nil // delay the press
		case Repeat:
			if state, ok := h.multiPurposeKeys[key]; ok {
				return state.repeat(h.now()), nil
			}
		case Release:
			if state, ok := h.multiPurposeKeys[key]; ok {
				delete(h.multiPurposeKeys, key)
				return state.release(h.now()), nil
			}
		default:
			panic(fmt.Sprintf("unexpected key event value: %v", value))
		}
		// fallthrough on state discrepancy (e.g. repeat/release with no tracked state)
		return []KeyEvent{{Key: key, Value: value}}, nil

	case PressReleaseKey:
		if value == Press || value == Release {
			hook := a.Release
			if value == Press {
				hook = a.Press
			}
			tagged := make([]taggedAction, len(hook))
			for i, act := range hook {
				tagged[i] = taggedAction{action: act, exactMatch: false}
			}
			if err := h.dispatchActions(tagged, key); err != nil {
				return nil, err
			}
		}
		return []KeyEvent{{Key: key, Value: value}}, nil

	default:
		return []KeyEvent{{Key: key, Value: value}}, nil
	}
}

// flushTimeoutKeys forces every still-delayed multi-purpose key into its
// held state when the current key event resolves to a press, so two
// physical keys are never both pending at once.
func (h *EventHandler) flushTimeoutKeys(keyValues []KeyEvent) []KeyEvent {
	flush := false
	for _, kv := range keyValues {
		if kv.Value == Press {
			flush = true
			break
		}
	}
	if !flush {
		return keyValues
	}
	var flushed []KeyEvent
	for _, state := range h.multiPurposeKeys {
		flushed = append(flushed, state.forceHeld()...)
	}
	return append(flushed, keyValues...)
}

func (h *EventHandler) findModmap(config *Config, key Key) (ModmapAction, bool) {
	for _, modmap := range config.Modmap {
		if action, ok := modmap.Remap[key]; ok {
			if modmap.Application != nil && !h.matchApplication(modmap.Application) {
				continue
			}
			return action, true
		}
	}
	return nil, false
}

// findKeymap resolves a pressed key to its expanded action list, first
// against the nested override stack (if any), then against the static
// keymap table. A nil, nil result means no match at all.
func (h *EventHandler) findKeymap(config *Config, key Key) ([]taggedAction, error) {
	if len(h.overrideRemaps) > 0 {
		var entries []OverrideEntry
		for _, table := range h.overrideRemaps {
			entries = append(entries, table[key]...)
		}
		if len(entries) > 0 {
			// A match is present: the whole stack is consumed right away,
			// win or lose, so a second keypress never sees stale overrides.
			if err := h.removeOverride(); err != nil {
				return nil, err
			}
			for _, exactPass := range [2]bool{true, false} {
				if result, found := h.resolvePass(entries, exactPass, config, false); found {
					return result, nil
				}
			}
		}
		// An override remap is set but not used. Flush the pending key.
		if err := h.timeoutOverride(); err != nil {
			return nil, err
		}
	}

	if entries, ok := config.KeymapTable[key]; ok {
		for _, exactPass := range [2]bool{true, false} {
			if result, found := h.resolvePass(entries, exactPass, config, true); found {
				return result, nil
			}
		}
	}
	return nil, nil
}

// resolvePass runs one exact/loose pass over entries. applyStage2Filters
// gates the application/mode checks that only apply to the static keymap
// table. Override-stack entries are matched on modifiers only; their
// Application and Mode fields are not checked.
func (h *EventHandler) resolvePass(entries []OverrideEntry, exactMatchPass bool, config *Config, applyStage2Filters bool) ([]taggedAction, bool) {
	var remaps []taggedAction
	collectingRemaps := false

	for _, entry := range entries {
		if entry.ExactMatch && !exactMatchPass {
			continue
		}
		extraMods, missingMods := h.diffModifiers(entry.Modifiers)
		if len(missingMods) > 0 {
			continue
		}
		if exactMatchPass && len(extraMods) > 0 {
			continue
		}
		if applyStage2Filters {
			if entry.Application != nil && !h.matchApplication(entry.Application) {
				continue
			}
			if entry.Mode != nil {
				if _, ok := entry.Mode[h.mode]; !ok {
					continue
				}
			}
		}

		actions := withExtraModifiers(entry.Actions, extraMods, entry.ExactMatch)
		if !collectingRemaps && !isRemap(entry.Actions) {
			return actions, true
		} else if isRemap(entry.Actions) {
			remaps = append(remaps, actions...)
			collectingRemaps = true
		}
	}
	return remaps, collectingRemaps
}

func (h *EventHandler) dispatchActions(actions []taggedAction, key Key) error {
	for _, a := range actions {
		if err := h.dispatchAction(a, key); err != nil {
			return err
		}
	}
	return nil
}

func (h *EventHandler) dispatchAction(ta taggedAction, key Key) error {
	switch a := ta.action.(type) {
	case KeyPressAction:
		h.sendKeyPress(a.KeyPress)

	case RemapAction:
		setTimeout := len(h.overrideRemaps) == 0
		h.overrideRemaps = append(h.overrideRemaps, buildOverrideTable(a.Remap.Table, ta.exactMatch))

		// Arm the timer only for the first of multiple eligible remaps, so
		// behavior is consistent with how a single override normally works.
		if setTimeout && a.Remap.Timeout != nil {
			if err := h.overrideTimer.Unset(); err != nil {
				return fmt.Errorf("unset override timer: %w", err)
			}
			if err := h.overrideTimer.Set(*a.Remap.Timeout); err != nil {
				return fmt.Errorf("set override timer: %w", err)
			}
			if a.Remap.TimeoutKey != nil {
				k := *a.Remap.TimeoutKey
				h.overrideTimeoutKey = &k
			} else {
				k := key
				h.overrideTimeoutKey = &k
			}
		}

	case LaunchAction:
		h.runCommand(a.Command)

	case SetModeAction:
		h.mode = a.Mode
		h.logger.Printf("mode: %s", a.Mode)

	case SetMarkAction:
		h.markSet = a.Set

	case WithMarkAction:
		h.sendKeyPress(h.withMark(a.KeyPress))

	case EscapeNextKeyAction:
		h.escapeNextKey = a.Set

	case SetExtraModifiersAction:
		h.extraModifiers = make(map[Key]struct{}, len(a.Keys))
		for _, k := range a.Keys {
			h.extraModifiers[k] = struct{}{}
		}
	}
	return nil
}

// sendKeyPress builds the modifier entourage around a chord: it presses
// whatever required modifiers are missing and virtually releases whatever
// physical modifiers are extra, emits the main key, delays, then restores
// the original physical modifier state. Only ModifierKeys ever get a real
// key event here — logical modifiers beyond those don't exist outside the
// daemon.
func (h *EventHandler) sendKeyPress(kp KeyPress) {
	extraMods, missingMods := h.diffModifiers(kp.Modifiers)
	extraKeys := h.filterExtraForSend(extraMods)
	missingKeys := filterToModifierKeys(missingMods)

	h.sendKeys(missingKeys, Press)
	h.sendKeys(extraKeys, Release)

	h.sendKey(kp.Key, Press)
	h.sendKey(kp.Key, Release)

	h.sendAction(DelayAction{Duration: h.keypressDelay})

	h.sendKeys(extraKeys, Press)
	h.sendKeys(missingKeys, Release)
}

func (h *EventHandler) withMark(kp KeyPress) KeyPress {
	if h.markSet && !hasShift(kp.Modifiers) {
		mods := make([]Modifier, len(kp.Modifiers), len(kp.Modifiers)+1)
		copy(mods, kp.Modifiers)
		mods = append(mods, ShiftModifier())
		return KeyPress{Key: kp.Key, Modifiers: mods}
	}
	return kp
}

func (h *EventHandler) runCommand(argv []string) {
	h.sendAction(CommandAction{Argv: argv})
}

// diffModifiers returns the physically-pressed modifier keys not required
// by mods (extraModifiers), and the canonical key for each modifier in
// mods that isn't currently satisfied (missingModifiers).
func (h *EventHandler) diffModifiers(mods []Modifier) (extra, missing []Key) {
	for k := range h.modifiers {
		if !containsModifier(mods, k) {
			extra = append(extra, k)
		}
	}
	for _, m := range mods {
		if !h.matchModifier(m) {
			missing = append(missing, m.defaultKey())
		}
	}
	return extra, missing
}

func (h *EventHandler) matchModifier(m Modifier) bool {
	for k := range h.modifiers {
		if m.Matches(k) {
			return true
		}
	}
	return false
}

func (h *EventHandler) matchApplication(matcher *ApplicationMatcher) bool {
	if h.applicationCache == nil {
		app := ""
		if h.applicationClient != nil {
			app = h.applicationClient.CurrentApplication()
		}
		h.applicationCache = &app
	}
	return matcher.matches(*h.applicationCache)
}

func (h *EventHandler) updateModifier(key Key, value KeyValue) {
	if value == Press {
		h.modifiers[key] = struct{}{}
	} else if value == Release {
		delete(h.modifiers, key)
	}
}

func filterToModifierKeys(keys []Key) []Key {
	var out []Key
	for _, k := range keys {
		if isModifierKey(k) {
			out = append(out, k)
		}
	}
	return out
}

func (h *EventHandler) filterExtraForSend(keys []Key) []Key {
	var out []Key
	for _, k := range keys {
		if !isModifierKey(k) {
			continue
		}
		if _, suppressed := h.extraModifiers[k]; suppressed {
			continue
		}
		out = append(out, k)
	}
	return out
}
