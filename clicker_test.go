package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"testing"
	"time"
)

type fakeCapture struct {
	calls int
	err   error
}

func (f *fakeCapture) Capture(region Region) (image.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return image.NewGray(image.Rect(0, 0, region.Width, region.Height)), nil
}

// fakeFinder returns one batch per call, then nothing
type fakeFinder struct {
	batches [][]ScreenPoint
	repeat  []ScreenPoint // returned forever when set
	calls   int
	err     error
}

func (f *fakeFinder) FindMatches(frame image.Image, region Region) ([]ScreenPoint, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.repeat != nil {
		return f.repeat, nil
	}
	if f.calls <= len(f.batches) {
		return f.batches[f.calls-1], nil
	}
	return nil, nil
}

type fakeInput struct {
	moves   []image.Point
	clicks  int
	keys    []string
	moveErr error
	keyErr  error
	onClick func(clicks int)
}

func (f *fakeInput) MoveTo(x, y int) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves = append(f.moves, image.Pt(x, y))
	return nil
}

func (f *fakeInput) Click() error {
	f.clicks++
	if f.onClick != nil {
		f.onClick(f.clicks)
	}
	return nil
}

func (f *fakeInput) PressKey(key string) error {
	if f.keyErr != nil {
		return f.keyErr
	}
	f.keys = append(f.keys, key)
	return nil
}

type recordingObserver struct {
	states []ClickerState
	last   StatsSnapshot
}

func (r *recordingObserver) UpdateStatus(state ClickerState, stats StatsSnapshot) {
	r.states = append(r.states, state)
	r.last = stats
}

func targets(n int) []ScreenPoint {
	out := make([]ScreenPoint, n)
	for i := range out {
		out[i] = ScreenPoint{X: 100, Y: 500 - i*50}
	}
	return out
}

func newTestController(capture Capturer, input Injector, finder Finder, run *RunState, opts ControllerOptions) *Controller {
	c := NewController(capture, input, finder, NewRegion(0, 0, 640, 480), run, opts)
	c.sleep = func(time.Duration) {}
	return c
}

func TestControllerNoMatchesEndsDone(t *testing.T) {
	input := &fakeInput{}
	c := newTestController(&fakeCapture{}, input, &fakeFinder{}, NewRunState(), ControllerOptions{})

	state, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state != StateDone {
		t.Errorf("state = %s, want Done", state)
	}
	if input.clicks != 0 || len(input.keys) != 0 {
		t.Errorf("clicks = %d, keys = %v, want no input", input.clicks, input.keys)
	}
}

func TestControllerStopMidBatch(t *testing.T) {
	run := NewRunState()
	input := &fakeInput{
		onClick: func(clicks int) {
			if clicks == 2 {
				run.RequestStop(StopReasonKey)
			}
		},
	}
	finder := &fakeFinder{batches: [][]ScreenPoint{targets(5)}}
	c := newTestController(&fakeCapture{}, input, finder, run, ControllerOptions{})

	state, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state != StateStopped {
		t.Errorf("state = %s, want Stopped", state)
	}
	if input.clicks != 2 {
		t.Errorf("clicks = %d, want exactly 2", input.clicks)
	}
	if len(input.moves) != 2 {
		t.Errorf("moves = %d, want 2", len(input.moves))
	}
	if len(input.keys) != 0 {
		t.Errorf("scrolled after stop: %v", input.keys)
	}
	if run.Reason() != StopReasonKey {
		t.Errorf("reason = %q, want %q", run.Reason(), StopReasonKey)
	}
}

func TestControllerStopAfterLastTargetSkipsScroll(t *testing.T) {
	run := NewRunState()
	input := &fakeInput{
		onClick: func(clicks int) {
			if clicks == 3 {
				run.RequestStop(StopReasonTray)
			}
		},
	}
	c := newTestController(&fakeCapture{}, input, &fakeFinder{batches: [][]ScreenPoint{targets(3)}}, run, ControllerOptions{})

	state, _ := c.Run(context.Background())
	if state != StateStopped || input.clicks != 3 || len(input.keys) != 0 {
		t.Errorf("state = %s, clicks = %d, keys = %v; want Stopped, 3, none", state, input.clicks, input.keys)
	}
}

func TestControllerStopBeforeFirstCapture(t *testing.T) {
	run := NewRunState()
	run.RequestStop(StopReasonKey)
	capture := &fakeCapture{}
	c := newTestController(capture, &fakeInput{}, &fakeFinder{}, run, ControllerOptions{})

	state, err := c.Run(context.Background())
	if err != nil || state != StateStopped {
		t.Fatalf("Run = %s, %v; want Stopped, nil", state, err)
	}
	if capture.calls != 0 {
		t.Errorf("captured %d times after stop", capture.calls)
	}
}

func TestControllerContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := NewRunState()
	c := newTestController(&fakeCapture{}, &fakeInput{}, &fakeFinder{}, run, ControllerOptions{})

	state, err := c.Run(ctx)
	if err != nil || state != StateStopped {
		t.Fatalf("Run = %s, %v; want Stopped, nil", state, err)
	}
	if run.Reason() != StopReasonSignal {
		t.Errorf("reason = %q, want %q", run.Reason(), StopReasonSignal)
	}
}

func TestControllerScrollsBetweenBatches(t *testing.T) {
	first := []ScreenPoint{{X: 10, Y: 300}, {X: 10, Y: 100}}
	second := []ScreenPoint{{X: 20, Y: 200}}
	finder := &fakeFinder{batches: [][]ScreenPoint{first, second}}
	input := &fakeInput{}
	obs := &recordingObserver{}
	c := newTestController(&fakeCapture{}, input, finder, NewRunState(), ControllerOptions{Observer: obs})

	state, err := c.Run(context.Background())
	if err != nil || state != StateDone {
		t.Fatalf("Run = %s, %v; want Done, nil", state, err)
	}

	wantMoves := []image.Point{{X: 10, Y: 300}, {X: 10, Y: 100}, {X: 20, Y: 200}}
	if len(input.moves) != len(wantMoves) {
		t.Fatalf("moves = %v, want %v", input.moves, wantMoves)
	}
	for i := range wantMoves {
		if input.moves[i] != wantMoves[i] {
			t.Errorf("move %d = %v, want %v", i, input.moves[i], wantMoves[i])
		}
	}
	if fmt.Sprint(input.keys) != "[pagedown pagedown]" {
		t.Errorf("keys = %v, want two pagedown", input.keys)
	}
	if finder.calls != 3 {
		t.Errorf("finder calls = %d, want 3", finder.calls)
	}

	wantStates := []ClickerState{
		StateActing, StateScrolling, StateSearching,
		StateActing, StateScrolling, StateSearching,
		StateDone,
	}
	if fmt.Sprint(obs.states) != fmt.Sprint(wantStates) {
		t.Errorf("transitions = %v, want %v", obs.states, wantStates)
	}

	stats := c.Stats().Snapshot()
	if stats.Iterations != 3 || stats.Matches != 3 || stats.Clicks != 3 || stats.Scrolls != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if obs.last.Clicks != 3 {
		t.Errorf("observer saw %d clicks, want 3", obs.last.Clicks)
	}
}

func TestControllerPauseSequence(t *testing.T) {
	timing := Timing{
		Hover:        1 * time.Millisecond,
		AfterClick:   2 * time.Millisecond,
		BeforeScroll: 3 * time.Millisecond,
		AfterScroll:  4 * time.Millisecond,
	}
	c := newTestController(&fakeCapture{}, &fakeInput{}, &fakeFinder{batches: [][]ScreenPoint{targets(1)}},
		NewRunState(), ControllerOptions{Timing: timing, ScrollKey: "down"})

	var pauses []time.Duration
	c.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []time.Duration{timing.Hover, timing.AfterClick, timing.BeforeScroll, timing.AfterScroll}
	if fmt.Sprint(pauses) != fmt.Sprint(want) {
		t.Errorf("pauses = %v, want %v", pauses, want)
	}
}

func TestControllerMaxIterations(t *testing.T) {
	capture := &fakeCapture{}
	input := &fakeInput{}
	finder := &fakeFinder{repeat: targets(1)}
	c := newTestController(capture, input, finder, NewRunState(), ControllerOptions{MaxIterations: 2})

	state, err := c.Run(context.Background())
	if err != nil || state != StateDone {
		t.Fatalf("Run = %s, %v; want Done, nil", state, err)
	}
	if capture.calls != 2 || input.clicks != 2 {
		t.Errorf("captures = %d, clicks = %d, want 2 and 2", capture.calls, input.clicks)
	}
}

func TestControllerFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		capture   *fakeCapture
		finder    *fakeFinder
		input     *fakeInput
		wantKind  ErrorKind
		wantState ClickerState
	}{
		{
			name:      "capture",
			capture:   &fakeCapture{err: boom},
			finder:    &fakeFinder{},
			input:     &fakeInput{},
			wantKind:  CaptureFailure,
			wantState: StateSearching,
		},
		{
			name:      "match",
			capture:   &fakeCapture{},
			finder:    &fakeFinder{err: boom},
			input:     &fakeInput{},
			wantKind:  MatchFailure,
			wantState: StateSearching,
		},
		{
			name:      "move",
			capture:   &fakeCapture{},
			finder:    &fakeFinder{batches: [][]ScreenPoint{targets(2)}},
			input:     &fakeInput{moveErr: boom},
			wantKind:  InjectionFailure,
			wantState: StateActing,
		},
		{
			name:      "scroll key",
			capture:   &fakeCapture{},
			finder:    &fakeFinder{batches: [][]ScreenPoint{targets(1)}},
			input:     &fakeInput{keyErr: boom},
			wantKind:  InjectionFailure,
			wantState: StateScrolling,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(tt.capture, tt.input, tt.finder, NewRunState(), ControllerOptions{})
			state, err := c.Run(context.Background())
			if !IsKind(err, tt.wantKind) {
				t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
			}
			if !errors.Is(err, boom) {
				t.Errorf("err = %v does not wrap the cause", err)
			}
			if state != tt.wantState {
				t.Errorf("state = %s, want %s", state, tt.wantState)
			}
		})
	}
}

func TestControllerFrameHook(t *testing.T) {
	var seen []int
	finder := &fakeFinder{batches: [][]ScreenPoint{targets(1)}}
	c := newTestController(&fakeCapture{}, &fakeInput{}, finder, NewRunState(), ControllerOptions{
		FrameHook: func(iteration int, frame image.Image) {
			if frame.Bounds().Dx() != 640 {
				t.Errorf("frame width = %d, want 640", frame.Bounds().Dx())
			}
			seen = append(seen, iteration)
		},
	})

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(seen) != "[1 2]" {
		t.Errorf("hook iterations = %v, want [1 2]", seen)
	}
}

func TestClickerStateString(t *testing.T) {
	tests := []struct {
		state    ClickerState
		want     string
		terminal bool
	}{
		{StateSearching, "Searching", false},
		{StateActing, "Acting", false},
		{StateScrolling, "Scrolling", false},
		{StateDone, "Done", true},
		{StateStopped, "Stopped", true},
		{ClickerState(99), "Unknown", false},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.want, got, tt.terminal)
		}
	}
}

func TestControllerLogsTransitionsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	saved := globalLogger
	globalLogger = newLogger(&buf, "info")
	defer func() { globalLogger = saved }()

	finder := &fakeFinder{batches: [][]ScreenPoint{targets(1)}}
	c := newTestController(&fakeCapture{}, &fakeInput{}, finder, NewRunState(), ControllerOptions{})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"State: Searching -> Acting",
		"State: Acting -> Scrolling",
		"State: Scrolling -> Searching",
		"State: Searching -> Done",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log is missing %q:\n%s", want, out)
		}
	}
}
