// Package main - browser.go
//
// This file implements the browser backend: the coupon page is a tab of an
// already running Chrome/Chromium started with --remote-debugging-port, driven
// through the DevTools protocol with chromedp.
//
// Mapping onto the clicker:
//   - Windows: page targets of the browser (title = tab title)
//   - Activate: attach to the tab, bring it to front, pin the viewport at scale 1
//   - Capture: viewport screenshot, cropped to the region
//   - Input: synthetic mouse/key events dispatched to the tab
//
// Coordinates:
// The region of a tab is its viewport with origin (0, 0), so screen-space targets
// are CSS pixels inside the page. The viewport is emulated at device scale 1 so a
// screenshot pixel equals a CSS pixel.
//
// Contexts:
//   - allocCtx: remote allocator (connection to the DevTools endpoint)
//   - rootCtx: browser-level context used to list targets
//   - pageCtx: attached to the selected tab, replaced on each Activate
//
// Timeout Strategy:
//   - Connect: 10 seconds (watchdog, the first Run itself has no deadline)
//   - Viewport read / screenshot: 5 seconds
//   - Input events: 2 seconds
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// DefaultDevToolsURL is where a locally started Chrome listens
const DefaultDevToolsURL = "http://127.0.0.1:9222"

const (
	connectTimeout = 10 * time.Second
	captureTimeout = 5 * time.Second
	inputTimeout   = 2 * time.Second
)

var errNoTab = errors.New("no tab attached")

// browserKeys maps robotgo-style key names to DevTools key values
var browserKeys = map[string]string{
	"pagedown": kb.PageDown,
	"pageup":   kb.PageUp,
	"down":     kb.ArrowDown,
	"up":       kb.ArrowUp,
	"end":      kb.End,
	"home":     kb.Home,
	"space":    " ",
	"enter":    kb.Enter,
}

// Browser is a DevTools session on a running browser.
//
// Concurrency:
// The clicker drives it from one goroutine; mu only guards the tab context
// against Close running from the shutdown path.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	mu         sync.Mutex
	pageCtx    context.Context
	pageCancel context.CancelFunc

	// last pointer position; DevTools clicks need explicit coordinates
	pointerX, pointerY float64
}

// NewBrowserBackend connects to devtoolsURL and returns a backend driving its tabs.
// The stop key still comes from the desktop keyboard hook.
func NewBrowserBackend(ctx context.Context, devtoolsURL string) (*Backend, error) {
	b, err := ConnectBrowser(ctx, devtoolsURL)
	if err != nil {
		return nil, err
	}
	keys := StartHookKeyPoll()
	return &Backend{
		Name:    BackendBrowser,
		Capture: b,
		Input:   b,
		Windows: b,
		Keys:    keys,
		closers: []func(){b.Close, keys.Close},
	}, nil
}

// ConnectBrowser attaches to the browser behind devtoolsURL
func ConnectBrowser(ctx context.Context, devtoolsURL string) (*Browser, error) {
	b := &Browser{}
	b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), devtoolsURL)
	b.rootCtx, b.rootCancel = chromedp.NewContext(b.allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		LogDebug(format, args...)
	}))

	LogInfo("Connecting to browser at %s", devtoolsURL)

	// The first Run allocates the connection. It must not use a derived timeout
	// context: cancelling that would drop the connection again.
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(b.rootCtx) }()

	select {
	case err := <-errCh:
		if err != nil {
			b.Close()
			return nil, newError(StartupFailure, "connect browser", err)
		}
	case <-time.After(connectTimeout):
		b.Close()
		return nil, newError(StartupFailure, "connect browser", fmt.Errorf("no answer from %s after %v", devtoolsURL, connectTimeout))
	}
	LogInfo("Browser connected")
	return b, nil
}

// Windows lists the open tabs
func (b *Browser) Windows() ([]Window, error) {
	infos, err := chromedp.Targets(b.rootCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	windows := make([]Window, 0, len(infos))
	for _, t := range infos {
		if t.Type != "page" {
			continue
		}
		windows = append(windows, Window{ID: string(t.TargetID), Title: t.Title})
	}
	return windows, nil
}

// Activate attaches to the tab, brings it to front and returns it with its
// viewport as bounds
func (b *Browser) Activate(w Window) (Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pageCancel != nil {
		b.pageCancel()
	}
	b.pageCtx, b.pageCancel = chromedp.NewContext(b.rootCtx, chromedp.WithTargetID(target.ID(w.ID)))

	// Attach without a timeout, same as the connection
	if err := chromedp.Run(b.pageCtx); err != nil {
		return w, fmt.Errorf("attach tab %q: %w", w.Title, err)
	}

	ctx, cancel := context.WithTimeout(b.pageCtx, captureTimeout)
	defer cancel()

	var size []int64
	err := chromedp.Run(ctx,
		page.BringToFront(),
		chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &size),
	)
	if err != nil {
		return w, fmt.Errorf("read viewport of %q: %w", w.Title, err)
	}
	if len(size) != 2 {
		return w, fmt.Errorf("attach tab %q: unexpected viewport %v", w.Title, size)
	}

	if err := chromedp.Run(ctx, chromedp.EmulateViewport(size[0], size[1])); err != nil {
		return w, fmt.Errorf("pin viewport: %w", err)
	}

	w.Bounds = NewRegion(0, 0, int(size[0]), int(size[1]))
	return w, nil
}

// tab returns the attached tab context
func (b *Browser) tab() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pageCtx == nil || b.pageCtx.Err() != nil {
		return nil, errNoTab
	}
	return b.pageCtx, nil
}

// Capture takes a viewport screenshot and returns the part covered by region
func (b *Browser) Capture(region Region) (image.Image, error) {
	pageCtx, err := b.tab()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(pageCtx, captureTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	rect := region.Rect()
	if rect.Eq(img.Bounds()) {
		return img, nil
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok || !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("region %s outside screenshot %v", region, img.Bounds())
	}
	return sub.SubImage(rect), nil
}

func (b *Browser) dispatch(action chromedp.Action) error {
	pageCtx, err := b.tab()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(pageCtx, inputTimeout)
	defer cancel()
	return chromedp.Run(ctx, action)
}

// MoveTo moves the synthetic pointer to viewport coordinates
func (b *Browser) MoveTo(x, y int) error {
	b.pointerX, b.pointerY = float64(x), float64(y)
	return b.dispatch(chromedp.MouseEvent(input.MouseMoved, b.pointerX, b.pointerY))
}

// Click presses and releases the left button at the last pointer position
func (b *Browser) Click() error {
	return b.dispatch(chromedp.MouseClickXY(b.pointerX, b.pointerY))
}

// PressKey sends a key to the tab. Unknown names are sent as typed text.
func (b *Browser) PressKey(key string) error {
	if k, ok := browserKeys[key]; ok {
		key = k
	}
	return b.dispatch(chromedp.KeyEvent(key))
}

// Close detaches from the tab and drops the connection. The browser itself keeps
// running.
func (b *Browser) Close() {
	LogInfo("Closing browser session...")
	b.mu.Lock()
	if b.pageCancel != nil {
		b.pageCancel()
		b.pageCancel = nil
	}
	b.mu.Unlock()

	if b.rootCancel != nil {
		b.rootCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	LogInfo("Browser session closed")
}
