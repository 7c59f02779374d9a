package wm

import (
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"
)

func TestNoneAlwaysReportsEmpty(t *testing.T) {
	var c None
	if app := c.CurrentApplication(); app != "" {
		t.Errorf("expected empty application, got %q", app)
	}
}

func TestFindFocusedAppPrefersAppID(t *testing.T) {
	tree := `{
		"nodes": [
			{"focused": false, "app_id": "not-this-one"},
			{"focused": true, "app_id": "firefox"}
		]
	}`
	app, ok := findFocusedApp(parseTestTree(t, tree))
	if !ok || app != "firefox" {
		t.Errorf("expected firefox, got %q (ok=%v)", app, ok)
	}
}

func TestFindFocusedAppFallsBackToWindowClass(t *testing.T) {
	tree := `{
		"floating_nodes": [
			{"focused": true, "window_properties": {"class": "Emacs"}}
		]
	}`
	app, ok := findFocusedApp(parseTestTree(t, tree))
	if !ok || app != "Emacs" {
		t.Errorf("expected Emacs, got %q (ok=%v)", app, ok)
	}
}

func TestFindFocusedAppNoFocusedNode(t *testing.T) {
	tree := `{"nodes": [{"focused": false, "app_id": "x"}]}`
	_, ok := findFocusedApp(parseTestTree(t, tree))
	if ok {
		t.Errorf("expected no focused node to be found")
	}
}

func TestSwayQueryOverFakeSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "sway.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	payload := []byte(`{"nodes":[{"focused":true,"app_id":"kitty"}]}`)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, len(swayMagic)+8)
		if _, err := readFull(conn, header); err != nil {
			return
		}
		length := binary.LittleEndian.Uint32(header[len(swayMagic):])
		req := make([]byte, length)
		if _, err := readFull(conn, req); err != nil {
			return
		}

		respHeader := make([]byte, len(swayMagic)+8)
		copy(respHeader, swayMagic)
		binary.LittleEndian.PutUint32(respHeader[len(swayMagic):], uint32(len(payload)))
		binary.LittleEndian.PutUint32(respHeader[len(swayMagic)+4:], swayGetTree)
		conn.Write(respHeader)
		conn.Write(payload)
	}()

	s := NewSway(sockPath)
	app := s.CurrentApplication()
	if app != "kitty" {
		t.Errorf("expected kitty, got %q", app)
	}
}

func TestSwayQueryUnreachableSocketReturnsEmpty(t *testing.T) {
	s := NewSway("/nonexistent/sway.sock")
	if app := s.CurrentApplication(); app != "" {
		t.Errorf("expected empty application for unreachable socket, got %q", app)
	}
}

func TestHyprlandQueryOverFakeSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "hypr.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		conn.Read(buf)
		conn.Write([]byte(`{"class":"firefox","title":"Example"}`))
	}()

	h := NewHyprland(sockPath)
	app := h.CurrentApplication()
	if app != "firefox" {
		t.Errorf("expected firefox, got %q", app)
	}
}

func parseTestTree(t *testing.T, json string) gjson.Result {
	t.Helper()
	return gjson.Parse(json)
}
