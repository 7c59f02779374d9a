package device

import (
	"context"
	"fmt"
	"log"
	"strings"

	evdev "github.com/holoplot/go-evdev"

	"github.com/keyremapd/keyremapd/internal/core"
)

// Dispatcher is the narrow interface Loop drives with every Action a
// read produces. internal/dispatch.ActionDispatcher satisfies it.
type Dispatcher interface {
	Dispatch(action core.Action) error
}

// Loop is the outer driver: one goroutine per grabbed device plus one
// goroutine blocked on the override timer all feed a single channel,
// funneling every source into core.EventHandler.OnEvents, with every
// resulting Action forwarded to dispatcher in order.
type Loop struct {
	devices    []*evdev.InputDevice
	timer      *Timer
	handler    *core.EventHandler
	config     *core.Config
	dispatcher Dispatcher
	logger     *log.Logger
}

func NewLoop(devices []*evdev.InputDevice, timer *Timer, handler *core.EventHandler, config *core.Config, dispatcher Dispatcher, logger *log.Logger) *Loop {
	return &Loop{
		devices:    devices,
		timer:      timer,
		handler:    handler,
		config:     config,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run blocks, reading events until ctx is cancelled, a source reports a
// read error, or the handler fails; a device whose goroutine exits quietly
// does not end Run. Each device's events between consecutive SYN_REPORT
// markers arrive as one batch, handed to a single OnEvents call, so a
// diagonal mouse move (REL_X, REL_Y, SYN as one kernel report) coalesces
// into one MouseMovementEventCollectionAction instead of two independent
// ones.
func (l *Loop) Run(ctx context.Context) error {
	eventCh := make(chan []core.Event, 64)
	errCh := make(chan error, len(l.devices)+1)
	done := make(chan struct{})
	defer close(done)

	for _, dev := range l.devices {
		go readDeviceLoop(dev, eventCh, errCh, done)
	}
	go readTimerLoop(l.timer, eventCh, errCh, done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case batch := <-eventCh:
			if err := l.handleEvents(batch); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) handleEvents(events []core.Event) error {
	actions, err := l.handler.OnEvents(events, l.config)
	if err != nil {
		return fmt.Errorf("handle events: %w", err)
	}
	for _, action := range actions {
		if err := l.dispatcher.Dispatch(action); err != nil {
			l.logger.Printf("dispatch action: %v", err)
		}
	}
	return nil
}

// eventReader is the narrow slice of *evdev.InputDevice readDeviceLoop
// needs, injected as an interface so tests can drive it with a fixed
// event sequence instead of a real device node.
type eventReader interface {
	ReadOne() (*evdev.InputEvent, error)
}

// readDeviceLoop calls ReadOne in a tight loop, buffering translated
// events until a SYN_REPORT closes out the kernel's current report, then
// forwarding the whole batch at once. It exits quietly once the device is
// closed out from under it so a clean shutdown never surfaces as a
// spurious error.
func readDeviceLoop(dev eventReader, eventCh chan<- []core.Event, errCh chan<- error, done <-chan struct{}) {
	var batch []core.Event
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			if isDeviceClosedError(err) {
				return
			}
			errCh <- fmt.Errorf("read device event: %w", err)
			return
		}

		if ev.Type == evdev.EV_SYN {
			if len(batch) == 0 {
				continue
			}
			select {
			case eventCh <- batch:
				batch = nil
			case <-done:
				return
			}
			continue
		}

		batch = append(batch, translateEvent(*ev))
	}
}

func readTimerLoop(timer *Timer, eventCh chan<- []core.Event, errCh chan<- error, done <-chan struct{}) {
	for {
		if _, err := timer.WaitForFire(); err != nil {
			select {
			case <-done:
				return
			default:
			}
			errCh <- fmt.Errorf("read override timer: %w", err)
			return
		}
		select {
		case eventCh <- []core.Event{core.OverrideTimeoutEvent{}}:
		case <-done:
			return
		}
	}
}

func isDeviceClosedError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "file already closed") ||
		strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "no such device")
}

// translateEvent converts a raw evdev.InputEvent (other than EV_SYN, which
// readDeviceLoop consumes as a batch boundary) into the core.Event the
// handler understands, passing anything outside EV_KEY/EV_REL through as
// an opaque OtherInputEvent, which the handler re-emits verbatim without
// any modmap/keymap lookup.
func translateEvent(ev evdev.InputEvent) core.Event {
	switch ev.Type {
	case evdev.EV_KEY:
		return core.KeyInputEvent{KeyEvent: core.NewKeyEvent(ev.Code, ev.Value)}
	case evdev.EV_REL:
		return core.RelativeInputEvent{RelativeEvent: core.RelativeEvent{Code: ev.Code, Value: ev.Value}}
	default:
		return core.OtherInputEvent{Event: ev}
	}
}
