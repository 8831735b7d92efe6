// Package main - window.go
//
// Target window discovery. The locator polls a WindowSource until a window whose
// title contains the configured substring exists, brings it to the front and
// returns its geometry. This is the only retried failure: the operator may start
// the clicker before opening the window.
package main

import (
	"context"
	"strings"
	"time"
)

// Window discovery defaults
const (
	DefaultWindowPollInterval = 2 * time.Second
	DefaultActivateSettle     = 1 * time.Second
)

// Window is a candidate target window
type Window struct {
	ID     string
	Title  string
	Bounds Region
}

// WindowSource lists windows and brings one to the front. Activate returns the
// window with its geometry as of activation.
type WindowSource interface {
	Windows() ([]Window, error)
	Activate(w Window) (Window, error)
}

// WindowLocator finds the target window by title substring
type WindowLocator struct {
	source   WindowSource
	interval time.Duration
	settle   time.Duration
}

// NewWindowLocator creates a locator polling source every interval
func NewWindowLocator(source WindowSource, interval, settle time.Duration) *WindowLocator {
	if interval <= 0 {
		interval = DefaultWindowPollInterval
	}
	return &WindowLocator{
		source:   source,
		interval: interval,
		settle:   settle,
	}
}

// Locate blocks until a matching window exists or ctx ends.
//
// The first window (in source order) whose title contains titlePart wins. Listing
// errors are logged and retried like a missing window. After activation the
// locator waits for the settle delay so the window is on top before capture.
func (l *WindowLocator) Locate(ctx context.Context, titlePart string) (Window, error) {
	for {
		LogInfo("Looking for a window with '%s' in its title...", titlePart)

		w, ok, err := l.find(titlePart)
		if err != nil {
			LogWarn("Window listing failed: %v", err)
		}
		if ok {
			LogInfo("Found target window: %s", w.Title)
			if active, err := l.source.Activate(w); err != nil {
				LogWarn("Failed to activate window %q: %v", w.Title, err)
			} else {
				w = active
			}
			if l.settle > 0 {
				select {
				case <-ctx.Done():
					return Window{}, newError(StartupFailure, "locate window", ctx.Err())
				case <-time.After(l.settle):
				}
			}
			LogInfo("Using window dimensions: %s", w.Bounds)
			return w, nil
		}

		LogInfo("Window not found. Waiting and trying again...")
		select {
		case <-ctx.Done():
			return Window{}, newError(StartupFailure, "locate window", ctx.Err())
		case <-time.After(l.interval):
		}
	}
}

func (l *WindowLocator) find(titlePart string) (Window, bool, error) {
	windows, err := l.source.Windows()
	if err != nil {
		return Window{}, false, err
	}
	for _, w := range windows {
		if strings.Contains(w.Title, titlePart) {
			return w, true, nil
		}
	}
	return Window{}, false, nil
}
