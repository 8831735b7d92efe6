// Package main - tray.go
//
// This file implements the optional system tray UI (getlantern/systray).
//
// Menu Structure:
//   Coupon Clicker
//   ├─ Status: State | Clicks | Clicks/min | Uptime (read-only, updated on every transition)
//   ├─ Stop (request a stop; the run ends at its next checkpoint)
//   └─ Quit (stop, then close the tray once the run has ended)
//
// Lifecycle:
//   1. NewTrayApp: create with the run state it may stop
//   2. Run: start systray (blocking, must own the main thread), the work function
//      runs in a goroutine once the tray is ready
//   3. The work function returning closes the tray
//
// The tray never exits the process itself: Quit only requests a stop so the run
// can finish its current step and the summary is still logged.
package main

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// TrayApp shows run status in the system tray and lets the operator stop the run.
type TrayApp struct {
	state *RunState

	mu         sync.Mutex
	statusItem *systray.MenuItem
	stopItem   *systray.MenuItem
	quitItem   *systray.MenuItem
	lastStatus string
}

// NewTrayApp creates a tray bound to state
func NewTrayApp(state *RunState) *TrayApp {
	return &TrayApp{
		state:      state,
		lastStatus: "Starting...",
	}
}

// Run starts the tray and runs work in a goroutine once the menu exists.
// It returns after work has returned and the tray has been torn down.
func (t *TrayApp) Run(work func()) {
	LogInfo("Starting system tray application")
	systray.Run(func() {
		t.onReady()
		SafeGo(func() {
			defer systray.Quit()
			work()
		})
	}, func() {
		LogInfo("System tray exit complete")
	})
	LogInfo("System tray Run() returned")
}

// onReady is called when the tray is ready
func (t *TrayApp) onReady() {
	systray.SetTitle("Coupon Clicker")
	systray.SetTooltip("Coupon Clicker")

	t.mu.Lock()
	t.statusItem = systray.AddMenuItem(formatStatus(t.lastStatus), "Current run status")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.stopItem = systray.AddMenuItem("Stop", "Stop clicking after the current step")
	t.quitItem = systray.AddMenuItem("Quit", "Stop and close the tray")
	t.mu.Unlock()

	SafeGo(t.handleEvents)
}

func (t *TrayApp) handleEvents() {
	for {
		select {
		case <-t.stopItem.ClickedCh:
			LogInfo("Stop requested from tray")
			t.requestStop()
		case <-t.quitItem.ClickedCh:
			LogInfo("Quit requested from tray")
			t.requestStop()
			return
		case <-t.state.Done():
			t.stopItem.Disable()
			return
		}
	}
}

func (t *TrayApp) requestStop() {
	t.state.RequestStop(StopReasonTray)
	t.stopItem.Disable()
}

func formatStatus(status string) string {
	return fmt.Sprintf("Status: %s", status)
}

// UpdateStatus shows the controller state and counters
func (t *TrayApp) UpdateStatus(state ClickerState, stats StatsSnapshot) {
	status := fmt.Sprintf("%s | %d clicks | %.1f/min | %s",
		state, stats.Clicks, stats.ClicksPerMinute(), FormatDuration(stats.Uptime))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastStatus = status
	if t.statusItem != nil {
		t.statusItem.SetTitle(formatStatus(status))
	}
}
