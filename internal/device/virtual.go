package device

import (
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// virtualDeviceID is an arbitrary-but-stable bus/vendor/product identity
// for the synthetic output device, so the kernel doesn't hand back
// zeroed ids for it.
var virtualDeviceID = evdev.InputID{
	BusType: 0x03, // BUS_USB
	Vendor:  0x4b5,
	Product: 0x6d70, // "mp" for "remap"
	Version: 1,
}

// CreateVirtualDevice opens a synthetic uinput-backed evdev node that
// advertises exactly the capabilities in caps (cmd/keyremapd passes
// DefaultCapabilities).
func CreateVirtualDevice(name string, caps map[evdev.EvType][]evdev.EvCode) (*evdev.InputDevice, error) {
	dev, err := evdev.CreateDevice(name, virtualDeviceID, caps)
	if err != nil {
		return nil, fmt.Errorf("create virtual device %s: %w", name, err)
	}
	return dev, nil
}

// DefaultCapabilities returns the baseline capability set every virtual
// device needs regardless of configuration: key codes 0-255 and the
// REL_X, REL_Y, REL_HWHEEL and REL_WHEEL axes for mouse movement and wheel
// passthrough. Button codes (BTN_*, from 0x100 up) and other relative axes
// are not advertised.
func DefaultCapabilities() map[evdev.EvType][]evdev.EvCode {
	keys := make([]evdev.EvCode, 0, 256)
	for code := evdev.EvCode(0); code < 256; code++ {
		keys = append(keys, code)
	}
	return map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: keys,
		evdev.EV_REL: {0, 1, 6, 8}, // REL_X, REL_Y, REL_HWHEEL, REL_WHEEL
	}
}
