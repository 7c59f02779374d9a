// Package config loads the daemon's TOML remap file and translates it into
// the read-only core.Config snapshot the EventHandler consumes. It is a
// pure translation layer: nothing here is mutated after Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/keyremapd/keyremapd/internal/core"
)

// DeviceConfig names one input device to grab, or the empty path to mean
// "auto-detect every keyboard or pointer /dev/input/event* node".
type DeviceConfig struct {
	Path string `toml:"path"`
}

// Config is the top-level on-disk configuration.
type Config struct {
	Mode            string         `toml:"mode"`
	KeypressDelayMs int            `toml:"keypress_delay_ms"`
	Device          []DeviceConfig `toml:"device"`
	Modmap          []rawModmap    `toml:"modmap"`
	Keymap          []rawKeymap    `toml:"keymap"`
}

type rawApplication struct {
	Only []string `toml:"only"`
	Not  []string `toml:"not"`
}

type rawModmap struct {
	Remap       map[string]toml.Primitive `toml:"remap"`
	Application *rawApplication           `toml:"application"`
}

type rawKeymap struct {
	Remap       map[string]toml.Primitive `toml:"remap"`
	Modifiers   []string                  `toml:"modifiers"`
	Mode        []string                  `toml:"mode"`
	Application *rawApplication           `toml:"application"`
	ExactMatch  bool                      `toml:"exact_match"`
}

// rawModmapValue is the polymorphic shape of one modmap.remap entry: either
// a bare key name (key substitution) or a tagged table.
type rawModmapValue struct {
	Type           string `toml:"type"`
	Key            string `toml:"key"`
	Held           string `toml:"held"`
	Alone          string `toml:"alone"`
	AloneTimeoutMs int    `toml:"alone_timeout_ms"`
	Virtual        bool   `toml:"virtual"`
}

// rawAction is the polymorphic shape of one keymap action entry. Exactly
// one of its groups is expected to be populated; which fields are set
// decides the KeymapAction variant it decodes to.
type rawAction struct {
	Key          string   `toml:"key"`
	KeyModifiers []string `toml:"key_modifiers"`

	Launch []string `toml:"launch"`

	SetMode string `toml:"set_mode"`
	SetMark *bool  `toml:"set_mark"`

	WithMark          string   `toml:"with_mark"`
	WithMarkModifiers []string `toml:"with_mark_modifiers"`

	EscapeNextKey *bool `toml:"escape_next_key"`

	Remap      map[string]toml.Primitive `toml:"remap"`
	TimeoutMs  *int                      `toml:"timeout_ms"`
	TimeoutKey string                    `toml:"timeout_key"`

	Virtual bool `toml:"virtual"`
}

// DefaultPath returns the default config file path (~/.config/keyremapd/config.toml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "keyremapd", "config.toml")
}

// Default returns an empty, pass-through configuration: no modmap or
// keymap entries, default mode, zero keypress delay, auto-detected device.
func Default() *Config {
	return &Config{
		Mode:   "default",
		Device: []DeviceConfig{{Path: ""}},
	}
}

// Load reads and parses the TOML config at path. If the file does not
// exist, it returns Default() without error — a fresh install should
// run pass-through rather than fail to start.
func Load(path string) (*Config, error) {
	cfg := Default()

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		// Keys nested inside a modmap/keymap remap value are still undecoded
		// here: Build decodes those values later via toml.PrimitiveDecode.
		if len(key) > 3 && key[1] == "remap" {
			continue
		}
		return nil, fmt.Errorf("config %s: unrecognized key %q", path, key)
	}

	return cfg, nil
}

// Build translates the on-disk Config into the core.Config snapshot
// EventHandler.OnEvents consumes, resolving every key name and modifier
// string through the shared key name table.
func (c *Config) Build() (*core.Config, error) {
	out := &core.Config{
		KeymapTable:      make(map[core.Key][]core.OverrideEntry),
		VirtualModifiers: make(map[core.Key]struct{}),
	}

	for i, rm := range c.Modmap {
		entry, virtualKeys, err := buildModmapEntry(rm)
		if err != nil {
			return nil, fmt.Errorf("modmap[%d]: %w", i, err)
		}
		out.Modmap = append(out.Modmap, entry)
		for _, k := range virtualKeys {
			out.VirtualModifiers[k] = struct{}{}
		}
	}

	for i, rk := range c.Keymap {
		if err := buildKeymapGroup(rk, out); err != nil {
			return nil, fmt.Errorf("keymap[%d]: %w", i, err)
		}
	}

	return out, nil
}

// KeypressDelay is the inter-chord pacing delay, as a time.Duration.
func (c *Config) KeypressDelay() time.Duration {
	return time.Duration(c.KeypressDelayMs) * time.Millisecond
}

// buildModmapEntry translates one [[modmap]] block, returning the entries
// it defines alongside the substitution targets any entry flagged `virtual`
// names — keys that act purely as modifier state and are never themselves
// forwarded as a real key event (SPEC_FULL.md §5.1's `virtual_modifiers`).
func buildModmapEntry(rm rawModmap) (core.ModmapEntry, []core.Key, error) {
	entry := core.ModmapEntry{Remap: make(map[core.Key]core.ModmapAction, len(rm.Remap))}
	if rm.Application != nil {
		app, err := buildApplicationMatcher(rm.Application)
		if err != nil {
			return entry, nil, err
		}
		entry.Application = app
	}

	var virtualKeys []core.Key
	for name, prim := range rm.Remap {
		key, err := KeyCodeFromName(name)
		if err != nil {
			return entry, nil, err
		}
		action, virtual, err := decodeModmapValue(prim)
		if err != nil {
			return entry, nil, fmt.Errorf("%s: %w", name, err)
		}
		entry.Remap[key] = action
		if virtual {
			virtualKeys = append(virtualKeys, virtualModifierTargets(action)...)
		}
	}
	return entry, virtualKeys, nil
}

// virtualModifierTargets picks the substitution target(s) a `virtual` flag
// applies to: the substituted key, or for multi_purpose_key the held key,
// since that is the one ever used as a Modifier::Key operand.
func virtualModifierTargets(action core.ModmapAction) []core.Key {
	switch a := action.(type) {
	case core.KeySubstitution:
		return []core.Key{a.Key}
	case core.MultiPurposeKey:
		return []core.Key{a.Held}
	default:
		return nil
	}
}

// decodeModmapValue decodes one modmap.remap TOML value. A bare string is
// a key substitution target; a table carries the multi_purpose_key shape.
// toml.Primitive hides the distinction until decode time, so both shapes
// are attempted in turn. The second return reports whether the entry was
// flagged `virtual` in the config.
func decodeModmapValue(prim toml.Primitive) (core.ModmapAction, bool, error) {
	var asString string
	if err := toml.PrimitiveDecode(prim, &asString); err == nil && asString != "" {
		key, err := KeyCodeFromName(asString)
		if err != nil {
			return nil, false, err
		}
		return core.KeySubstitution{Key: key}, false, nil
	}

	var v rawModmapValue
	if err := toml.PrimitiveDecode(prim, &v); err != nil {
		return nil, false, fmt.Errorf("decode modmap entry: %w", err)
	}
	switch v.Type {
	case "multi_purpose_key":
		held, err := KeyCodeFromName(v.Held)
		if err != nil {
			return nil, false, err
		}
		alone, err := KeyCodeFromName(v.Alone)
		if err != nil {
			return nil, false, err
		}
		return core.MultiPurposeKey{
			Held:         held,
			Alone:        alone,
			AloneTimeout: time.Duration(v.AloneTimeoutMs) * time.Millisecond,
		}, v.Virtual, nil
	case "key", "":
		key, err := KeyCodeFromName(v.Key)
		if err != nil {
			return nil, false, err
		}
		return core.KeySubstitution{Key: key}, v.Virtual, nil
	default:
		return nil, false, fmt.Errorf("unknown modmap entry type: %s", v.Type)
	}
}

func buildKeymapGroup(rk rawKeymap, out *core.Config) error {
	mods, err := buildModifiers(rk.Modifiers)
	if err != nil {
		return err
	}
	var app *core.ApplicationMatcher
	if rk.Application != nil {
		app, err = buildApplicationMatcher(rk.Application)
		if err != nil {
			return err
		}
	}
	var modeSet map[string]struct{}
	if len(rk.Mode) > 0 {
		modeSet = make(map[string]struct{}, len(rk.Mode))
		for _, m := range rk.Mode {
			modeSet[m] = struct{}{}
		}
	}

	for name, prim := range rk.Remap {
		key, err := KeyCodeFromName(name)
		if err != nil {
			return err
		}
		actions, virtualKeys, err := decodeKeymapActions(prim)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out.KeymapTable[key] = append(out.KeymapTable[key], core.OverrideEntry{
			Modifiers:   mods,
			Actions:     actions,
			ExactMatch:  rk.ExactMatch,
			Application: app,
			Mode:        modeSet,
		})
		for _, vk := range virtualKeys {
			out.VirtualModifiers[vk] = struct{}{}
		}
	}
	return nil
}

// decodeKeymapActions decodes one keymap.remap TOML value: a single action
// table, or an array of them, both producing an ordered KeymapAction list
// alongside the key(s) any action flagged `virtual` names.
func decodeKeymapActions(prim toml.Primitive) ([]core.KeymapAction, []core.Key, error) {
	var raws []rawAction
	if err := toml.PrimitiveDecode(prim, &raws); err == nil {
		actions := make([]core.KeymapAction, 0, len(raws))
		var virtualKeys []core.Key
		for _, r := range raws {
			a, vk, err := buildAction(r)
			if err != nil {
				return nil, nil, err
			}
			actions = append(actions, a)
			virtualKeys = append(virtualKeys, vk...)
		}
		return actions, virtualKeys, nil
	}

	var single rawAction
	if err := toml.PrimitiveDecode(prim, &single); err != nil {
		return nil, nil, fmt.Errorf("decode keymap action: %w", err)
	}
	a, vk, err := buildAction(single)
	if err != nil {
		return nil, nil, err
	}
	return []core.KeymapAction{a}, vk, nil
}

// buildAction decodes one action table, returning the key(s) a `virtual`
// flag names — the target of a key press/with-mark action that is only
// ever used as a Modifier::Key operand and should never be forwarded as
// a real key event.
func buildAction(r rawAction) (core.KeymapAction, []core.Key, error) {
	switch {
	case r.Key != "":
		key, err := KeyCodeFromName(r.Key)
		if err != nil {
			return nil, nil, err
		}
		mods, err := buildModifiers(r.KeyModifiers)
		if err != nil {
			return nil, nil, err
		}
		action := core.KeyPressAction{KeyPress: core.KeyPress{Key: key, Modifiers: mods}}
		if r.Virtual {
			return action, []core.Key{key}, nil
		}
		return action, nil, nil

	case r.WithMark != "":
		key, err := KeyCodeFromName(r.WithMark)
		if err != nil {
			return nil, nil, err
		}
		mods, err := buildModifiers(r.WithMarkModifiers)
		if err != nil {
			return nil, nil, err
		}
		action := core.WithMarkAction{KeyPress: core.KeyPress{Key: key, Modifiers: mods}}
		if r.Virtual {
			return action, []core.Key{key}, nil
		}
		return action, nil, nil

	case len(r.Launch) > 0:
		return core.LaunchAction{Command: r.Launch}, nil, nil

	case r.SetMode != "":
		return core.SetModeAction{Mode: r.SetMode}, nil, nil

	case r.SetMark != nil:
		return core.SetMarkAction{Set: *r.SetMark}, nil, nil

	case r.EscapeNextKey != nil:
		return core.EscapeNextKeyAction{Set: *r.EscapeNextKey}, nil, nil

	case r.Remap != nil:
		table := make(map[core.Key][]core.OverrideEntry, len(r.Remap))
		var virtualKeys []core.Key
		for name, prim := range r.Remap {
			key, err := KeyCodeFromName(name)
			if err != nil {
				return nil, nil, err
			}
			actions, vk, err := decodeKeymapActions(prim)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", name, err)
			}
			table[key] = append(table[key], core.OverrideEntry{Actions: actions})
			virtualKeys = append(virtualKeys, vk...)
		}
		remap := core.Remap{Table: table}
		if r.TimeoutMs != nil {
			d := time.Duration(*r.TimeoutMs) * time.Millisecond
			remap.Timeout = &d
		}
		if r.TimeoutKey != "" {
			key, err := KeyCodeFromName(r.TimeoutKey)
			if err != nil {
				return nil, nil, err
			}
			remap.TimeoutKey = &key
		}
		return core.RemapAction{Remap: remap}, virtualKeys, nil

	default:
		return nil, nil, errors.New("keymap action has no recognized field set")
	}
}

func buildModifiers(names []string) ([]core.Modifier, error) {
	mods := make([]core.Modifier, 0, len(names))
	for _, name := range names {
		switch name {
		case "Shift":
			mods = append(mods, core.ShiftModifier())
		case "Control":
			mods = append(mods, core.ControlModifier())
		case "Alt":
			mods = append(mods, core.AltModifier())
		case "Windows":
			mods = append(mods, core.WindowsModifier())
		default:
			key, err := KeyCodeFromName(name)
			if err != nil {
				return nil, fmt.Errorf("unknown modifier: %s", name)
			}
			mods = append(mods, core.KeyModifier(key))
		}
	}
	return mods, nil
}

func buildApplicationMatcher(a *rawApplication) (*core.ApplicationMatcher, error) {
	m := &core.ApplicationMatcher{}
	for _, pat := range a.Only {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("application.only %q: %w", pat, err)
		}
		m.Only = append(m.Only, re)
	}
	for _, pat := range a.Not {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("application.not %q: %w", pat, err)
		}
		m.Not = append(m.Not, re)
	}
	return m, nil
}
