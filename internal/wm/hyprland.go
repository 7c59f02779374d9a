package wm

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

const hyprlandDialTimeout = swayDialTimeout

// Hyprland dials Hyprland's plain-text command socket and asks for the
// active window as JSON, the same one-shot-connection-per-query approach
// as the Sway backend.
type Hyprland struct {
	socketPath string
}

func NewHyprland(socketPath string) *Hyprland {
	return &Hyprland{socketPath: socketPath}
}

// hyprlandSocketPath derives the .socket.sock path Hyprland exposes for a
// given instance signature under $XDG_RUNTIME_DIR/hypr.
func hyprlandSocketPath(instanceSignature string) string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = "/run/user/0"
	}
	return filepath.Join(runtimeDir, "hypr", instanceSignature, ".socket.sock")
}

func (h *Hyprland) CurrentApplication() string {
	app, err := h.query()
	if err != nil {
		return ""
	}
	return app
}

func (h *Hyprland) query() (string, error) {
	conn, err := net.DialTimeout("unix", h.socketPath, hyprlandDialTimeout)
	if err != nil {
		return "", fmt.Errorf("dial hyprland socket: %w", err)
	}
	defer conn.Close()

	// The "j/" prefix asks Hyprland's IPC to respond with JSON instead of
	// its default human-readable text.
	if _, err := conn.Write([]byte("j/activewindow")); err != nil {
		return "", fmt.Errorf("write hyprland query: %w", err)
	}
	body, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read hyprland response: %w", err)
	}

	result := gjson.ParseBytes(body)
	if class := result.Get("class").String(); class != "" {
		return class, nil
	}
	return "", nil
}
