package wm

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/tidwall/gjson"
)

const (
	swayMagic       = "i3-ipc"
	swayGetTree     = 4
	swayDialTimeout = 500 * time.Millisecond
)

// Sway dials the Sway compositor's IPC unix socket on demand, one
// connection per query, since focus probing is infrequent (only on a
// keymap/modmap entry whose Application matcher is non-nil) and a
// persistent connection would need its own reconnect logic for no gain.
type Sway struct {
	socketPath string
}

func NewSway(socketPath string) *Sway {
	return &Sway{socketPath: socketPath}
}

// CurrentApplication returns "" on any I/O or protocol error rather than
// propagating it — a focus probe failing must never abort key processing.
func (s *Sway) CurrentApplication() string {
	app, err := s.query()
	if err != nil {
		return ""
	}
	return app
}

func (s *Sway) query() (string, error) {
	conn, err := net.DialTimeout("unix", s.socketPath, swayDialTimeout)
	if err != nil {
		return "", fmt.Errorf("dial sway socket: %w", err)
	}
	defer conn.Close()

	if err := writeSwayMessage(conn, swayGetTree, nil); err != nil {
		return "", err
	}
	payload, err := readSwayMessage(conn)
	if err != nil {
		return "", err
	}

	if app, ok := findFocusedApp(gjson.ParseBytes(payload)); ok {
		return app, nil
	}
	return "", nil
}

func writeSwayMessage(conn net.Conn, msgType uint32, payload []byte) error {
	header := make([]byte, len(swayMagic)+8)
	copy(header, swayMagic)
	binary.LittleEndian.PutUint32(header[len(swayMagic):], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[len(swayMagic)+4:], msgType)
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("write sway header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return fmt.Errorf("write sway payload: %w", err)
		}
	}
	return nil
}

func readSwayMessage(conn net.Conn) ([]byte, error) {
	header := make([]byte, len(swayMagic)+8)
	if _, err := readFull(conn, header); err != nil {
		return nil, fmt.Errorf("read sway header: %w", err)
	}
	if string(header[:len(swayMagic)]) != swayMagic {
		return nil, fmt.Errorf("bad sway ipc magic")
	}
	length := binary.LittleEndian.Uint32(header[len(swayMagic):])
	payload := make([]byte, length)
	if _, err := readFull(conn, payload); err != nil {
		return nil, fmt.Errorf("read sway payload: %w", err)
	}
	return payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// findFocusedApp walks the Sway node tree (nodes + floating_nodes,
// recursively) looking for the focused leaf, preferring its Wayland
// app_id and falling back to the legacy X11 window class.
func findFocusedApp(node gjson.Result) (string, bool) {
	if node.Get("focused").Bool() {
		if id := node.Get("app_id").String(); id != "" {
			return id, true
		}
		if class := node.Get("window_properties.class").String(); class != "" {
			return class, true
		}
	}
	for _, child := range node.Get("nodes").Array() {
		if app, ok := findFocusedApp(child); ok {
			return app, ok
		}
	}
	for _, child := range node.Get("floating_nodes").Array() {
		if app, ok := findFocusedApp(child); ok {
			return app, ok
		}
	}
	return "", false
}
