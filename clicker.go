// Package main - clicker.go
//
// This file implements the click controller as a state machine.
//
// State Machine States:
//   - Searching: capture the region and run the matcher
//   - Acting: move to and click every target of the current batch, bottom-most first
//   - Scrolling: send one scroll keystroke and let the view settle
//   - Done: a capture produced no targets (terminal)
//   - Stopped: a stop was requested (terminal)
//
// State Transitions:
//   Searching -> Done      (no targets)
//   Searching -> Acting    (targets found)
//   Acting    -> Scrolling (batch exhausted)
//   Scrolling -> Searching
//   any       -> Stopped   (stop observed at a checkpoint)
//
// Checkpoints:
//   - top of Searching
//   - before each target in Acting (a stop abandons the rest of the batch)
//   - after the last target, before scrolling
//
// Failure Semantics:
// Capture, match and injection errors are returned as *ClickerError and end the run.
// Nothing is retried: the UI under automation may have changed, and there is no
// safe way to resume locally.
package main

import (
	"context"
	"fmt"
	"image"
	"time"
)

// ClickerState represents the current state of the controller
type ClickerState int

const (
	StateSearching ClickerState = iota
	StateActing
	StateScrolling
	StateDone
	StateStopped
)

// String returns the string representation of the state
func (s ClickerState) String() string {
	switch s {
	case StateSearching:
		return "Searching"
	case StateActing:
		return "Acting"
	case StateScrolling:
		return "Scrolling"
	case StateDone:
		return "Done"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions happen from s
func (s ClickerState) Terminal() bool {
	return s == StateDone || s == StateStopped
}

// Capturer returns a fresh frame of a screen region
type Capturer interface {
	Capture(region Region) (image.Image, error)
}

// Injector sends synthetic pointer and keyboard input
type Injector interface {
	MoveTo(x, y int) error
	Click() error
	PressKey(key string) error
}

// Finder turns a frame into ordered click targets
type Finder interface {
	FindMatches(frame image.Image, region Region) ([]ScreenPoint, error)
}

// StateObserver is told about every state transition
type StateObserver interface {
	UpdateStatus(state ClickerState, stats StatsSnapshot)
}

// Timing holds the fixed pauses of the cycle
type Timing struct {
	Hover        time.Duration // after moving, before clicking
	AfterClick   time.Duration // after clicking, before the next target
	BeforeScroll time.Duration
	AfterScroll  time.Duration // lets the view re-render before the next capture
}

// DefaultTiming returns the standard pauses
func DefaultTiming() Timing {
	return Timing{
		Hover:        200 * time.Millisecond,
		AfterClick:   200 * time.Millisecond,
		BeforeScroll: 500 * time.Millisecond,
		AfterScroll:  750 * time.Millisecond,
	}
}

// DefaultScrollKey is the key pressed between batches
const DefaultScrollKey = "pagedown"

// ControllerOptions holds the optional parts of a Controller
type ControllerOptions struct {
	Timing        Timing
	ScrollKey     string
	MaxIterations int // 0 = unbounded
	Stats         *Statistics
	Observer      StateObserver
	FrameHook     func(iteration int, frame image.Image)
}

// Controller drives the capture -> match -> click -> scroll cycle.
//
// Not thread-safe: Run must be called from a single goroutine. The only state
// shared with other goroutines is the RunState.
type Controller struct {
	capture Capturer
	input   Injector
	finder  Finder
	region  Region
	run     *RunState
	opts    ControllerOptions
	sleep   func(time.Duration)

	state      ClickerState
	targets    []ScreenPoint
	iterations int
}

// NewController creates a controller in the Searching state
func NewController(capture Capturer, input Injector, finder Finder, region Region, run *RunState, opts ControllerOptions) *Controller {
	if opts.ScrollKey == "" {
		opts.ScrollKey = DefaultScrollKey
	}
	if opts.Stats == nil {
		opts.Stats = NewStatistics()
	}
	return &Controller{
		capture: capture,
		input:   input,
		finder:  finder,
		region:  region,
		run:     run,
		opts:    opts,
		sleep:   time.Sleep,
		state:   StateSearching,
	}
}

// Stats returns the controller's statistics
func (c *Controller) Stats() *Statistics {
	return c.opts.Stats
}

// Run executes the state machine until Done, Stopped or an error.
//
// Returns:
//   - ClickerState: the terminal state, or the state that failed
//   - error: *ClickerError on capture/match/injection failure, nil otherwise
func (c *Controller) Run(ctx context.Context) (ClickerState, error) {
	LogInfo("Controller started on region %s", c.region)

	for !c.state.Terminal() {
		var next ClickerState
		var err error

		switch c.state {
		case StateSearching:
			next, err = c.onSearching(ctx)
		case StateActing:
			next, err = c.onActing(ctx)
		case StateScrolling:
			next, err = c.onScrolling()
		}

		if err != nil {
			LogError("Run failed in %s: %v", c.state, err)
			return c.state, err
		}
		c.transition(next)
	}

	if c.state == StateStopped {
		LogInfo("Stopped (%s)", c.run.Reason())
	}
	return c.state, nil
}

func (c *Controller) transition(next ClickerState) {
	if next != c.state {
		LogInfo("State: %s -> %s", c.state, next)
	}
	c.state = next
	if c.opts.Observer != nil {
		c.opts.Observer.UpdateStatus(next, c.opts.Stats.Snapshot())
	}
}

// stopping is the checkpoint test
func (c *Controller) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		c.run.RequestStop(StopReasonSignal)
	}
	return c.run.StopRequested()
}

func (c *Controller) onSearching(ctx context.Context) (ClickerState, error) {
	if c.stopping(ctx) {
		return StateStopped, nil
	}

	if c.opts.MaxIterations > 0 && c.iterations >= c.opts.MaxIterations {
		LogInfo("Reached %d iterations. Exiting.", c.opts.MaxIterations)
		return StateDone, nil
	}
	c.iterations++

	timer := NewTimer("capture")
	frame, err := c.capture.Capture(c.region)
	timer.Log()
	if err != nil {
		return StateSearching, newError(CaptureFailure, "capture region", err)
	}

	if c.opts.FrameHook != nil {
		c.opts.FrameHook(c.iterations, frame)
	}

	targets, err := c.finder.FindMatches(frame, c.region)
	if err != nil {
		return StateSearching, newError(MatchFailure, "find matches", err)
	}
	c.opts.Stats.AddIteration(len(targets))

	if len(targets) == 0 {
		LogInfo("No more matches found. Exiting.")
		c.targets = nil
		return StateDone, nil
	}

	LogInfo("Found %d match(es)", len(targets))
	c.targets = targets
	return StateActing, nil
}

func (c *Controller) onActing(ctx context.Context) (ClickerState, error) {
	for i, p := range c.targets {
		if c.stopping(ctx) {
			LogInfo("Abandoning %d of %d target(s)", len(c.targets)-i, len(c.targets))
			return StateStopped, nil
		}

		LogDebug("Target %d/%d at (%d, %d)", i+1, len(c.targets), p.X, p.Y)
		if err := c.input.MoveTo(p.X, p.Y); err != nil {
			return StateActing, newError(InjectionFailure, fmt.Sprintf("move to (%d, %d)", p.X, p.Y), err)
		}
		c.sleep(c.opts.Timing.Hover)

		if err := c.input.Click(); err != nil {
			return StateActing, newError(InjectionFailure, fmt.Sprintf("click at (%d, %d)", p.X, p.Y), err)
		}
		c.opts.Stats.AddClick()
		c.sleep(c.opts.Timing.AfterClick)
	}
	c.targets = nil

	if c.stopping(ctx) {
		return StateStopped, nil
	}
	return StateScrolling, nil
}

func (c *Controller) onScrolling() (ClickerState, error) {
	c.sleep(c.opts.Timing.BeforeScroll)
	if err := c.input.PressKey(c.opts.ScrollKey); err != nil {
		return StateScrolling, newError(InjectionFailure, "press "+c.opts.ScrollKey, err)
	}
	c.opts.Stats.AddScroll()
	c.sleep(c.opts.Timing.AfterScroll)
	return StateSearching, nil
}
