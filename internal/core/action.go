package core

import (
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// Action is one unit of work for the ActionDispatcher. EventHandler never
// performs I/O itself; it only ever appends to the Action list it returns.
type Action interface {
	isAction()
}

// KeyEventAction asks the dispatcher to emit a key event, SYN implied.
type KeyEventAction struct {
	Key   Key
	Value KeyValue
}

// RelativeEventAction asks the dispatcher to emit a single relative event.
type RelativeEventAction struct {
	Code  evdev.EvCode
	Value int32
}

// MouseMovementEventCollectionAction asks the dispatcher to emit every
// listed relative event back-to-back, followed by exactly one SYN, so the
// kernel never sees the events separated by a synchronization point.
type MouseMovementEventCollectionAction struct {
	Events []RelativeEventAction
}

// InputEventAction is an opaque passthrough of any other evdev event.
type InputEventAction struct {
	Event evdev.InputEvent
}

// CommandAction asks the dispatcher to spawn a detached process.
type CommandAction struct {
	Argv []string
}

// DelayAction asks the dispatcher to sleep synchronously before continuing.
type DelayAction struct {
	Duration time.Duration
}

func (KeyEventAction) isAction()                    {}
func (RelativeEventAction) isAction()               {}
func (MouseMovementEventCollectionAction) isAction() {}
func (InputEventAction) isAction()                  {}
func (CommandAction) isAction()                     {}
func (DelayAction) isAction()                       {}
