// Package dispatch turns a core.Action into real I/O: writing events to
// the virtual output device or spawning a detached process, the external
// collaborator named in spec.md's downstream table.
package dispatch

import (
	"fmt"
	"log"
	"os/exec"
	"syscall"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/keyremapd/keyremapd/internal/core"
)

// EventWriter is the narrow slice of *evdev.InputDevice the dispatcher
// needs, injected as an interface so tests can exercise every Dispatch
// branch against a fake without a real /dev/uinput node.
type EventWriter interface {
	WriteOne(e *evdev.InputEvent) error
}

// ActionDispatcher executes every core.Action variant EventHandler can
// produce. It owns the synthetic output device for its whole lifetime.
type ActionDispatcher struct {
	virtualDevice EventWriter
	logger        *log.Logger
}

func NewActionDispatcher(virtualDevice EventWriter, logger *log.Logger) *ActionDispatcher {
	return &ActionDispatcher{virtualDevice: virtualDevice, logger: logger}
}

// Dispatch executes a single action, in the order the handler produced it.
func (d *ActionDispatcher) Dispatch(action core.Action) error {
	switch a := action.(type) {
	case core.KeyEventAction:
		return d.writeKeyEvent(a.Key, a.Value)
	case core.RelativeEventAction:
		return d.writeAndSync(evdev.EV_REL, a.Code, a.Value)
	case core.MouseMovementEventCollectionAction:
		return d.writeMouseMovementCollection(a.Events)
	case core.InputEventAction:
		return d.writeAndSync(a.Event.Type, a.Event.Code, a.Event.Value)
	case core.CommandAction:
		return d.runCommand(a.Argv)
	case core.DelayAction:
		time.Sleep(a.Duration)
		return nil
	default:
		return fmt.Errorf("dispatch: unknown action type %T", action)
	}
}

func (d *ActionDispatcher) writeKeyEvent(key core.Key, value core.KeyValue) error {
	return d.writeAndSync(evdev.EV_KEY, key, int32(value))
}

// writeAndSync writes a single event followed by an explicit SYN_REPORT,
// since the virtual device never batches events on its own.
func (d *ActionDispatcher) writeAndSync(evType evdev.EvType, code evdev.EvCode, value int32) error {
	if err := d.write(evType, code, value); err != nil {
		return err
	}
	return d.syn()
}

// writeMouseMovementCollection writes every event back-to-back and syncs
// exactly once at the end, so the kernel never observes the individual
// axis samples as separate reports — spec.md's non-interleaving guarantee
// for a single mouse-movement batch.
func (d *ActionDispatcher) writeMouseMovementCollection(events []core.RelativeEventAction) error {
	for _, ev := range events {
		if err := d.write(evdev.EV_REL, ev.Code, ev.Value); err != nil {
			return err
		}
	}
	return d.syn()
}

func (d *ActionDispatcher) write(evType evdev.EvType, code evdev.EvCode, value int32) error {
	event := evdev.InputEvent{Type: evType, Code: code, Value: value}
	if err := d.virtualDevice.WriteOne(&event); err != nil {
		return fmt.Errorf("write event (type=%d code=%d value=%d): %w", evType, code, value, err)
	}
	return nil
}

func (d *ActionDispatcher) syn() error {
	event := evdev.InputEvent{Type: evdev.EV_SYN, Code: 0, Value: 0}
	if err := d.virtualDevice.WriteOne(&event); err != nil {
		return fmt.Errorf("write syn: %w", err)
	}
	return nil
}

// runCommand spawns argv as a fully detached process: Start without Wait,
// Setsid so it survives this daemon's own session, reaped by a background
// goroutine so the caller never blocks on it.
func (d *ActionDispatcher) runCommand(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("dispatch: empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command %v: %w", argv, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			d.logger.Printf("command %v exited: %v", argv, err)
		}
	}()
	return nil
}
