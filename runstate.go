// Package main - runstate.go
//
// Cancellation for a run.
//
// RunState is the single piece of state shared between the controller and the
// things that may stop it (stop-key listener, tray Stop item, OS signals). It starts
// running; the first stop request wins, records its reason and is never undone.
//
// The controller only reads the state at its checkpoints, so a stop takes effect
// before the next click, not instantly.
package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultStopPollInterval is how often the stop key is sampled
const DefaultStopPollInterval = 100 * time.Millisecond

// Stop reasons reported in the log
const (
	StopReasonKey    = "stop key"
	StopReasonTray   = "tray"
	StopReasonSignal = "signal"
)

// RunState is a one-way running -> stopRequested flag.
type RunState struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
	reason  atomic.Value // string
}

// NewRunState creates a running state
func NewRunState() *RunState {
	return &RunState{done: make(chan struct{})}
}

// RequestStop moves the state to stopRequested. Only the first call has an effect;
// it returns true for that call.
func (s *RunState) RequestStop(reason string) bool {
	first := false
	s.once.Do(func() {
		s.reason.Store(reason)
		s.stopped.Store(true)
		close(s.done)
		first = true
	})
	if first {
		LogInfo("Stop requested (%s)", reason)
	}
	return first
}

// StopRequested reports whether a stop has been requested
func (s *RunState) StopRequested() bool {
	return s.stopped.Load()
}

// Done is closed when a stop is requested
func (s *RunState) Done() <-chan struct{} {
	return s.done
}

// Reason returns the reason given by the first stop request, or "" while running
func (s *RunState) Reason() string {
	if r, ok := s.reason.Load().(string); ok {
		return r
	}
	return ""
}

// KeyPoll reports whether a key is currently held down
type KeyPoll interface {
	IsPressed(key string) bool
}

// WatchStopKey polls key every interval and requests a stop the first time it is
// held. It returns once it has requested the stop, once the state is stopped by
// someone else, or when ctx ends.
func WatchStopKey(ctx context.Context, poll KeyPoll, key string, interval time.Duration, state *RunState) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	LogDebug("Stop key listener started (key %q, every %v)", key, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-state.Done():
			return
		case <-ticker.C:
			if poll.IsPressed(key) {
				LogInfo("%q key pressed. Stopping...", key)
				state.RequestStop(StopReasonKey)
				return
			}
		}
	}
}

// StopOnDone requests a stop with reason when ctx ends. Used to fold OS signals
// into the run state.
func StopOnDone(ctx context.Context, state *RunState, reason string) {
	select {
	case <-ctx.Done():
		state.RequestStop(reason)
	case <-state.Done():
	}
}
