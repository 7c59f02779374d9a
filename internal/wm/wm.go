// Package wm probes the focused window manager for the identity of the
// currently focused application, so internal/core's ApplicationMatcher
// rules (modmap/keymap entries scoped "only"/"not" to an app) have
// something real to compare against.
package wm

import (
	"log"
	"os"

	"github.com/keyremapd/keyremapd/internal/core"
)

// Detect picks a WMClient backend by probing the environment variables the
// running compositor sets, rather than requiring it named in config. It
// never fails: an unrecognized or headless environment falls back to the
// null client.
func Detect(logger *log.Logger) core.WMClient {
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}

	if sock := os.Getenv("SWAYSOCK"); sock != "" {
		logger.Printf("wm: using sway backend (%s)", sock)
		return NewSway(sock)
	}
	if sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE"); sig != "" {
		sock := hyprlandSocketPath(sig)
		logger.Printf("wm: using hyprland backend (%s)", sock)
		return NewHyprland(sock)
	}
	logger.Printf("wm: no supported compositor detected, application matchers see an empty application name")
	return None{}
}
