// Package device owns everything that touches a real or virtual evdev
// node: discovering and exclusively grabbing physical keyboards/pointers,
// creating the synthetic output device, and the read loop that turns their
// raw events into a core.EventHandler's Action stream.
package device

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// Discover opens and exclusively grabs every input device named in paths,
// or, if paths is empty, globs /dev/input/event* (numerically sorted, so
// event7 is found before event10) and grabs every node that looks like a
// keyboard or a pointer. The caller owns closing/ungrabbing every
// returned device; on a failure Discover itself ungrabs and closes
// anything it already opened before returning the error.
func Discover(paths []string) ([]*evdev.InputDevice, error) {
	var candidates []string
	var err error
	if len(paths) > 0 {
		candidates = paths
	} else {
		candidates, err = globEventNodes()
		if err != nil {
			return nil, err
		}
	}

	var devices []*evdev.InputDevice
	cleanup := func() {
		for _, d := range devices {
			_ = d.Ungrab()
			_ = d.Close()
		}
	}

	for _, path := range candidates {
		dev, err := evdev.Open(path)
		if err != nil {
			if len(paths) > 0 {
				cleanup()
				return nil, fmt.Errorf("open device %s: %w", path, err)
			}
			continue // auto-detect mode tolerates unreadable nodes
		}

		if len(paths) == 0 && !isUsableInputDevice(dev) {
			_ = dev.Close()
			continue
		}

		if err := dev.Grab(); err != nil {
			_ = dev.Close()
			cleanup()
			return nil, fmt.Errorf("grab device %s: %w", path, err)
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no usable input device found")
	}
	return devices, nil
}

// Release ungrabs and closes a device opened by Discover. Safe to call
// even if the grab already failed partway; errors are best-effort since
// the caller is shutting the device down regardless.
func Release(dev *evdev.InputDevice) {
	_ = dev.Ungrab()
	_ = dev.Close()
}

func globEventNodes() ([]string, error) {
	matches, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("glob /dev/input/event*: %w", err)
	}
	sortEventNodes(matches)
	return matches, nil
}

// sortEventNodes sorts /dev/input/eventN paths numerically by N so
// event7 is ordered before event10, unlike a plain lexical sort.
func sortEventNodes(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		ni, _ := strconv.Atoi(strings.TrimPrefix(paths[i], "/dev/input/event"))
		nj, _ := strconv.Atoi(strings.TrimPrefix(paths[j], "/dev/input/event"))
		return ni < nj
	})
}

// isUsableInputDevice accepts real keyboards (KEY_A..KEY_Z present) as
// well as pointers (anything advertising EV_REL), since this daemon
// remaps both key chords and scroll/wheel events. Devices that are
// neither (power buttons, LED controllers) are skipped so they are never
// needlessly grabbed.
func isUsableInputDevice(dev *evdev.InputDevice) bool {
	for _, evType := range dev.CapableTypes() {
		if evType == evdev.EV_REL {
			return true
		}
	}

	hasA, hasZ := false, false
	for _, code := range dev.CapableEvents(evdev.EV_KEY) {
		switch code {
		case 30: // KEY_A
			hasA = true
		case 44: // KEY_Z
			hasZ = true
		}
	}
	return hasA && hasZ
}
