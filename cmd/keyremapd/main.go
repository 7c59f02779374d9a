// Command keyremapd is a headless Linux key-remapping daemon: it grabs
// configured input devices exclusively, applies modmap/keymap
// substitutions, and re-emits the result on a synthetic evdev device.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/keyremapd/keyremapd/internal/config"
	"github.com/keyremapd/keyremapd/internal/core"
	"github.com/keyremapd/keyremapd/internal/device"
	"github.com/keyremapd/keyremapd/internal/dispatch"
	"github.com/keyremapd/keyremapd/internal/wm"
)

// repeatableFlag accumulates every occurrence of a repeated -device flag,
// since flag.String only ever keeps the last one.
type repeatableFlag []string

func (f *repeatableFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *repeatableFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func main() {
	os.Exit(run())
}

// run does the daemon's actual work and returns the process exit code,
// rather than calling os.Exit directly, so every defer registered below —
// ungrabbing devices, closing the virtual device, closing the timer — runs
// before the process exits on every path, including a non-fatal-looking
// loop error.
func run() int {
	configPath := flag.String("config", "", "path to the remap config file (default: ~/.config/keyremapd/config.toml)")
	debug := flag.Bool("debug", false, "enable debug logging to stderr")
	mode := flag.String("mode", "", "override the config's starting mode")
	var devicePathFlags repeatableFlag
	flag.Var(&devicePathFlags, "device", "input device path to grab (repeatable; default: auto-detect)")
	flag.Parse()

	var dbg *log.Logger
	if *debug {
		dbg = log.New(os.Stderr, "[DEBUG] ", log.Ltime|log.Lmicroseconds)
	} else {
		dbg = log.New(io.Discard, "", 0)
	}
	errLog := log.New(os.Stderr, "", log.Ltime)

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		errLog.Printf("load config: %v", err)
		return 1
	}
	dbg.Printf("loaded config from %s (mode=%s)", path, cfg.Mode)

	if *mode != "" {
		cfg.Mode = *mode
	}
	if len(devicePathFlags) > 0 {
		cfg.Device = make([]config.DeviceConfig, 0, len(devicePathFlags))
		for _, p := range devicePathFlags {
			cfg.Device = append(cfg.Device, config.DeviceConfig{Path: p})
		}
	}

	coreConfig, err := cfg.Build()
	if err != nil {
		errLog.Printf("build config: %v", err)
		return 1
	}

	devicePaths := make([]string, 0, len(cfg.Device))
	for _, d := range cfg.Device {
		if d.Path != "" {
			devicePaths = append(devicePaths, d.Path)
		}
	}

	devices, err := device.Discover(devicePaths)
	if err != nil {
		errLog.Printf("discover input devices: %v", err)
		return 1
	}
	defer func() {
		for _, d := range devices {
			device.Release(d)
		}
	}()
	for _, d := range devices {
		name, _ := d.Name()
		dbg.Printf("grabbed device: %s", name)
	}

	virtualDevice, err := device.CreateVirtualDevice("keyremapd virtual output", device.DefaultCapabilities())
	if err != nil {
		errLog.Printf("create virtual device: %v", err)
		return 1
	}
	defer func() { _ = virtualDevice.Close() }()

	timer, err := device.NewTimer()
	if err != nil {
		errLog.Printf("create override timer: %v", err)
		return 1
	}
	defer func() { _ = timer.Close() }()

	wmClient := wm.Detect(dbg)
	handler := core.NewEventHandler(timer, cfg.Mode, cfg.KeypressDelay(), wmClient, dbg)
	dispatcher := dispatch.NewActionDispatcher(virtualDevice, errLog)

	loop := device.NewLoop(devices, timer, handler, coreConfig, dispatcher, errLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		dbg.Printf("received signal %s, shutting down", sig)
		cancel()
	}()

	errLog.Printf("keyremapd running (%d device(s) grabbed)", len(devices))
	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		errLog.Printf("event loop stopped: %v", err)
		return 1
	}
	return 0
}
