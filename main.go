// Package main - main.go
//
// Coupon Clicker: finds every on-screen copy of a reference image inside a target
// window, clicks them bottom-most first, scrolls, and repeats until a capture
// shows no more copies or the operator stops it.
//
// Startup sequence:
//   1. Parse flags (env overrides already applied), validate, open the log
//   2. Load the reference pattern (fatal if missing)
//   3. Create the backend (desktop or browser)
//   4. Start the stop listener, then wait for the target window
//   5. Run the controller until Done, Stopped or an error
//   6. Log a summary
//
// Exit codes: 0 Done/Stopped, 1 error, 2 panic.
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vcaesar/imgo"
)

func main() {
	// systray and the native input libraries want the main thread
	runtime.LockOSThread()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			LogError("PANIC in main: %v", r)
			CloseLogger()
			code = 2
		}
	}()

	cmd := newRootCmd(LoadConfig())
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		LogError("%v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code = 1
	}
	LogInfo("=== Coupon Clicker Shutdown ===")
	CloseLogger()
	return code
}

func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "coupon-clicker",
		Short: "Click every copy of a reference image in a window, scrolling until none are left",
		Long: `Coupon Clicker captures the window whose title contains --window, clicks every
match of --pattern from the bottom up, presses --scroll-key and repeats. It stops
when a capture has no matches, or when --stop-key is held.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
				return newError(StartupFailure, "init logger", err)
			}
			LogInfo("=== Coupon Clicker Started ===")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClicker(cmd.Context(), cfg)
		},
	}
	cfg.BindFlags(root.PersistentFlags())
	root.AddCommand(newInspectCmd(cfg))
	return root
}

// runClicker wires the real collaborators and runs the bot
func runClicker(parent context.Context, cfg *Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pattern, err := LoadPattern(cfg.PatternPath)
	if err != nil {
		return err
	}
	defer pattern.Close()

	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	LogInfo("Backend: %s", backend.Name)

	bot := NewBot(cfg, backend, NewMatcher(pattern, cfg.Threshold, cfg.DedupRadius))
	if !cfg.Tray {
		return bot.Run(ctx)
	}

	tray := NewTrayApp(bot.State())
	bot.SetObserver(tray)
	errCh := make(chan error, 1)
	tray.Run(func() {
		errCh <- bot.Run(ctx)
	})
	select {
	case err := <-errCh:
		return err
	default:
		// tray closed before the work function ran
		return nil
	}
}

// Bot owns one run: stop handling, window lookup and the controller
type Bot struct {
	config   *Config
	backend  *Backend
	finder   Finder
	state    *RunState
	stats    *Statistics
	observer StateObserver
}

// NewBot creates a bot for one run
func NewBot(cfg *Config, backend *Backend, finder Finder) *Bot {
	return &Bot{
		config:  cfg,
		backend: backend,
		finder:  finder,
		state:   NewRunState(),
		stats:   NewStatistics(),
	}
}

// State returns the run state shared with the stop sources
func (b *Bot) State() *RunState {
	return b.state
}

// SetObserver registers a state observer; must be called before Run
func (b *Bot) SetObserver(o StateObserver) {
	b.observer = o
}

// Run blocks until the run is over. Done and Stopped return nil.
func (b *Bot) Run(ctx context.Context) error {
	SafeGo(func() { StopOnDone(ctx, b.state, StopReasonSignal) })
	SafeGo(func() {
		WatchStopKey(ctx, b.backend.Keys, b.config.StopKey, b.config.StopPollInterval, b.state)
	})
	LogInfo("Press '%s' to stop", b.config.StopKey)

	// A stop while the window is still missing ends the search too
	locateCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	SafeGo(func() {
		select {
		case <-b.state.Done():
			cancel()
		case <-locateCtx.Done():
		}
	})

	locator := NewWindowLocator(b.backend.Windows, b.config.WindowPollInterval, b.config.ActivateSettle)
	window, err := locator.Locate(locateCtx, b.config.WindowTitle)
	if err != nil {
		if b.state.StopRequested() {
			LogInfo("Stopped before the window was found (%s)", b.state.Reason())
			return nil
		}
		return err
	}
	if window.Bounds.Empty() {
		return newError(StartupFailure, "window bounds", fmt.Errorf("window %q has no area: %s", window.Title, window.Bounds))
	}

	controller := NewController(b.backend.Capture, b.backend.Input, b.finder, window.Bounds, b.state, ControllerOptions{
		Timing:        b.config.Timing,
		ScrollKey:     b.config.ScrollKey,
		MaxIterations: b.config.MaxIterations,
		Stats:         b.stats,
		Observer:      b.observer,
		FrameHook:     frameDumper(b.config.DumpFrame),
	})

	final, err := controller.Run(ctx)
	b.logSummary(final)
	if err != nil {
		var ce *ClickerError
		if errors.As(err, &ce) {
			LogError("Run ended with %s", ce.Kind)
		}
		return err
	}
	return nil
}

func (b *Bot) logSummary(final ClickerState) {
	s := b.stats.Snapshot()
	LogInfo("=== Summary ===")
	LogInfo("Final state: %s", final)
	LogInfo("Iterations: %d | Matches: %d | Clicks: %d | Scrolls: %d",
		s.Iterations, s.Matches, s.Clicks, s.Scrolls)
	LogInfo("Uptime: %s | %.1f clicks/min", FormatDuration(s.Uptime), s.ClicksPerMinute())
}

// frameDumper saves the first captured frame to path, for threshold tuning with
// the inspect command. Returns nil when path is empty.
func frameDumper(path string) func(int, image.Image) {
	if path == "" {
		return nil
	}
	return func(iteration int, frame image.Image) {
		if iteration != 1 {
			return
		}
		if err := imgo.Save(path, frame); err != nil {
			LogWarn("Failed to save first frame to %s: %v", path, err)
			return
		}
		LogInfo("First frame saved to %s", path)
	}
}
