// Package main - platform.go
//
// This file implements the native desktop backend and the backend selection.
//
// Desktop collaborators:
//   - Capture: kbinani/screenshot CaptureRect over the region (absolute coordinates)
//   - Input: robotgo Move / Click / KeyTap
//   - Windows: robotgo process list + window title/bounds per pid, ActivePid to focus
//   - Keys: gohook global keyboard hook, tracking which keys are held
//
// All robotgo calls are synchronous. robotgo's Move and Click report no errors; a
// failure there is only visible as a click that never lands.
package main

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"
	hook "github.com/robotn/gohook"
)

// Backend names
const (
	BackendDesktop = "desktop"
	BackendBrowser = "browser"
)

// Backend bundles the collaborators of one environment
type Backend struct {
	Name    string
	Capture Capturer
	Input   Injector
	Windows WindowSource
	Keys    KeyPoll
	closers []func()
}

// Close releases everything the backend opened, last opened first
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// NewBackend creates the backend selected in the config
func NewBackend(ctx context.Context, cfg *Config) (*Backend, error) {
	if !KnownKey(cfg.StopKey) {
		return nil, newError(StartupFailure, "stop key", fmt.Errorf("unknown key %q", cfg.StopKey))
	}

	switch cfg.Backend {
	case BackendDesktop:
		return NewDesktopBackend(), nil
	case BackendBrowser:
		return NewBrowserBackend(ctx, cfg.DevToolsURL)
	default:
		return nil, newError(StartupFailure, "backend", fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}

// NewDesktopBackend creates the native backend and starts the keyboard hook
func NewDesktopBackend() *Backend {
	keys := StartHookKeyPoll()
	return &Backend{
		Name:    BackendDesktop,
		Capture: DesktopCapture{},
		Input:   DesktopInput{},
		Windows: DesktopWindows{},
		Keys:    keys,
		closers: []func(){keys.Close},
	}
}

// DesktopCapture grabs screen regions
type DesktopCapture struct{}

// Capture returns the pixels of region
func (DesktopCapture) Capture(region Region) (image.Image, error) {
	img, err := screenshot.CaptureRect(region.Rect())
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", region, err)
	}
	return img, nil
}

// DesktopInput injects native pointer and keyboard events
type DesktopInput struct{}

// MoveTo moves the pointer to absolute screen coordinates
func (DesktopInput) MoveTo(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

// Click clicks the left button at the current pointer position
func (DesktopInput) Click() error {
	robotgo.Click("left")
	return nil
}

// PressKey taps a key (robotgo key names, e.g. "pagedown")
func (DesktopInput) PressKey(key string) error {
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("key tap %q: %w", key, err)
	}
	return nil
}

// DesktopWindows lists top-level windows through their owning processes
type DesktopWindows struct{}

// Windows returns every process that owns a titled window
func (DesktopWindows) Windows() ([]Window, error) {
	procs, err := robotgo.Process()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	windows := make([]Window, 0)
	for _, p := range procs {
		title := robotgo.GetTitle(p.Pid)
		if title == "" {
			continue
		}
		x, y, w, h := robotgo.GetBounds(p.Pid)
		windows = append(windows, Window{
			ID:     strconv.Itoa(p.Pid),
			Title:  title,
			Bounds: NewRegion(x, y, w, h),
		})
	}
	return windows, nil
}

// Activate focuses the window and re-reads its bounds, which can change when a
// minimized window is restored
func (DesktopWindows) Activate(w Window) (Window, error) {
	pid, err := strconv.Atoi(w.ID)
	if err != nil {
		return w, fmt.Errorf("bad window id %q: %w", w.ID, err)
	}
	if err := robotgo.ActivePid(pid); err != nil {
		return w, fmt.Errorf("activate pid %d: %w", pid, err)
	}
	x, y, width, height := robotgo.GetBounds(pid)
	w.Bounds = NewRegion(x, y, width, height)
	return w, nil
}

// KnownKey reports whether the keyboard hook can recognise key
func KnownKey(key string) bool {
	_, ok := hook.Keycode[key]
	return ok
}

// HookKeyPoll tracks held keys from the global keyboard hook
type HookKeyPoll struct {
	events chan hook.Event
	held   map[uint16]bool
	mu     sync.RWMutex
	once   sync.Once
}

// StartHookKeyPoll installs the hook and starts consuming its events
func StartHookKeyPoll() *HookKeyPoll {
	p := &HookKeyPoll{
		events: hook.Start(),
		held:   make(map[uint16]bool),
	}
	SafeGo(p.consume)
	return p
}

func (p *HookKeyPoll) consume() {
	for ev := range p.events {
		switch ev.Kind {
		case hook.KeyHold:
			p.set(ev.Keycode, true)
		case hook.KeyUp:
			p.set(ev.Keycode, false)
		}
	}
}

func (p *HookKeyPoll) set(code uint16, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held[code] = down
}

// IsPressed reports whether key is currently held
func (p *HookKeyPoll) IsPressed(key string) bool {
	code, ok := hook.Keycode[key]
	if !ok {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.held[code]
}

// Close removes the hook
func (p *HookKeyPoll) Close() {
	p.once.Do(hook.End)
}
