// Package main - config.go
//
// Run configuration. There is no config file: every setting has a default, an
// environment override (CLICKER_*) and a command line flag, applied in that order.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config holds every tunable of a run
type Config struct {
	PatternPath string
	WindowTitle string

	Threshold   float64
	DedupRadius float64

	StopKey   string
	ScrollKey string

	StopPollInterval   time.Duration
	WindowPollInterval time.Duration
	ActivateSettle     time.Duration
	Timing             Timing

	MaxIterations int // 0 = unbounded

	Backend     string
	DevToolsURL string
	Tray        bool

	LogLevel  string
	LogFile   string
	DumpFrame string // first captured frame is saved here when set

	envErrs []error
}

// LoadConfig returns the defaults with environment overrides applied. A malformed
// override keeps the default and is reported by Validate.
func LoadConfig() *Config {
	timing := DefaultTiming()
	env := &envReader{}
	cfg := &Config{
		PatternPath:        env.str("CLICKER_PATTERN", "clip.png"),
		WindowTitle:        env.str("CLICKER_WINDOW_TITLE", "Coupons"),
		Threshold:          env.float("CLICKER_THRESHOLD", DefaultThreshold),
		DedupRadius:        env.float("CLICKER_DEDUP_RADIUS", DefaultDedupRadius),
		StopKey:            env.str("CLICKER_STOP_KEY", "q"),
		ScrollKey:          env.str("CLICKER_SCROLL_KEY", DefaultScrollKey),
		StopPollInterval:   env.duration("CLICKER_STOP_POLL", DefaultStopPollInterval),
		WindowPollInterval: env.duration("CLICKER_WINDOW_POLL", DefaultWindowPollInterval),
		ActivateSettle:     env.duration("CLICKER_SETTLE_DELAY", DefaultActivateSettle),
		Timing: Timing{
			Hover:        env.duration("CLICKER_HOVER_DELAY", timing.Hover),
			AfterClick:   env.duration("CLICKER_CLICK_DELAY", timing.AfterClick),
			BeforeScroll: env.duration("CLICKER_PRE_SCROLL_DELAY", timing.BeforeScroll),
			AfterScroll:  env.duration("CLICKER_SCROLL_DELAY", timing.AfterScroll),
		},
		MaxIterations: env.int("CLICKER_MAX_ITERATIONS", 0),
		Backend:       env.str("CLICKER_BACKEND", BackendDesktop),
		DevToolsURL:   env.str("CLICKER_DEVTOOLS_URL", DefaultDevToolsURL),
		Tray:          env.bool("CLICKER_TRAY", false),
		LogLevel:      env.str("CLICKER_LOG_LEVEL", "info"),
		LogFile:       env.str("CLICKER_LOG_FILE", "Debug.log"),
		DumpFrame:     env.str("CLICKER_DUMP_FRAME", ""),
	}
	cfg.envErrs = env.errs
	return cfg
}

// BindFlags registers a flag for every setting, using the current values as defaults
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.PatternPath, "pattern", "p", c.PatternPath, "reference image of the element to click")
	fs.StringVarP(&c.WindowTitle, "window", "w", c.WindowTitle, "substring of the target window (or tab) title")
	fs.Float64VarP(&c.Threshold, "threshold", "t", c.Threshold, "similarity threshold in [0, 1]")
	fs.Float64Var(&c.DedupRadius, "radius", c.DedupRadius, "matches closer than this many pixels are merged")
	fs.StringVar(&c.StopKey, "stop-key", c.StopKey, "key that stops the run")
	fs.StringVar(&c.ScrollKey, "scroll-key", c.ScrollKey, "key pressed to advance the view")
	fs.DurationVar(&c.StopPollInterval, "stop-poll", c.StopPollInterval, "stop key sampling interval")
	fs.DurationVar(&c.WindowPollInterval, "window-poll", c.WindowPollInterval, "retry interval while the window is missing")
	fs.DurationVar(&c.ActivateSettle, "settle", c.ActivateSettle, "wait after bringing the window to front")
	fs.DurationVar(&c.Timing.Hover, "hover", c.Timing.Hover, "pause between moving and clicking")
	fs.DurationVar(&c.Timing.AfterClick, "after-click", c.Timing.AfterClick, "pause after each click")
	fs.DurationVar(&c.Timing.BeforeScroll, "before-scroll", c.Timing.BeforeScroll, "pause before scrolling")
	fs.DurationVar(&c.Timing.AfterScroll, "after-scroll", c.Timing.AfterScroll, "pause after scrolling")
	fs.IntVar(&c.MaxIterations, "max-iterations", c.MaxIterations, "stop after this many captures (0 = no limit)")
	fs.StringVar(&c.Backend, "backend", c.Backend, "desktop or browser")
	fs.StringVar(&c.DevToolsURL, "devtools-url", c.DevToolsURL, "DevTools endpoint for the browser backend")
	fs.BoolVar(&c.Tray, "tray", c.Tray, "show a system tray icon")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "log file, truncated on start (empty = stdout only)")
	fs.StringVar(&c.DumpFrame, "dump-frame", c.DumpFrame, "save the first captured frame to this PNG")
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	errs := append([]error(nil), c.envErrs...)

	if c.PatternPath == "" {
		errs = append(errs, errors.New("pattern path is empty"))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %v outside [0, 1]", c.Threshold))
	}
	if c.DedupRadius <= 0 {
		errs = append(errs, fmt.Errorf("dedup radius %v must be positive", c.DedupRadius))
	}
	if c.StopKey == "" {
		errs = append(errs, errors.New("stop key is empty"))
	}
	if c.ScrollKey == "" {
		errs = append(errs, errors.New("scroll key is empty"))
	}
	if c.StopPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("stop poll interval %v must be positive", c.StopPollInterval))
	}
	if c.WindowPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("window poll interval %v must be positive", c.WindowPollInterval))
	}
	if c.ActivateSettle < 0 {
		errs = append(errs, fmt.Errorf("settle delay %v is negative", c.ActivateSettle))
	}
	for name, d := range map[string]time.Duration{
		"hover":         c.Timing.Hover,
		"after-click":   c.Timing.AfterClick,
		"before-scroll": c.Timing.BeforeScroll,
		"after-scroll":  c.Timing.AfterScroll,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s pause %v is negative", name, d))
		}
	}
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max iterations %d is negative", c.MaxIterations))
	}
	switch c.Backend {
	case BackendDesktop:
	case BackendBrowser:
		if c.DevToolsURL == "" {
			errs = append(errs, errors.New("browser backend needs a DevTools URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if len(errs) > 0 {
		return newError(StartupFailure, "config", errors.Join(errs...))
	}
	return nil
}

// envReader reads CLICKER_* overrides and remembers the ones it could not parse
type envReader struct {
	errs []error
}

func (r *envReader) invalid(key, v, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q is not %s", key, v, want))
}

func (r *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.invalid(key, v, "an integer")
		return def
	}
	return i
}

func (r *envReader) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.invalid(key, v, "a number")
		return def
	}
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	r.invalid(key, v, "a boolean")
	return def
}

// duration accepts Go durations ("250ms") or plain milliseconds ("250")
func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	r.invalid(key, v, "a duration")
	return def
}
