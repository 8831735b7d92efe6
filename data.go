// Package main - data.go
//
// This file defines the core data structures shared by the matcher, the controller
// and the collaborators.
//
// Major Data Categories:
//
// 1. Geometric Types:
//    - Point: frame-local 2D coordinate with distance calculation
//    - Region: the capture rectangle in screen coordinates
//    - ScreenPoint: a click target in absolute screen coordinates
//
// 2. Statistics:
//    - Statistics: iteration/match/click counters, clicks per minute, uptime
//    - StatsSnapshot: immutable copy handed to observers (tray, summary log)
//
// Thread Safety:
// Statistics uses a RWMutex because the tray reads it while the controller writes.
// All other types are value types and should be copied when shared.
package main

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"
)

// Point represents a 2D coordinate in frame-local space.
//
// Used for:
//   - Offsets in the correlation score map (top-left corner of a match)
//   - Deduplication distance checks
type Point struct {
	X int
	Y int
}

// Distance calculates Euclidean distance to another point
func (p Point) Distance(other Point) float64 {
	dx := float64(p.X - other.X)
	dy := float64(p.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Region is the rectangle sampled every iteration, in screen coordinates.
//
// It is derived once from the target window geometry and never re-derived while
// the run is active. If the window moves or resizes, clicks land in the wrong place.
type Region struct {
	Top    int
	Left   int
	Width  int
	Height int
}

// NewRegion creates a Region from window bounds
func NewRegion(left, top, width, height int) Region {
	return Region{Top: top, Left: left, Width: width, Height: height}
}

// Rect returns the region as an image.Rectangle in screen coordinates
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Empty reports whether the region has no area
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// String formats the region for log output
func (r Region) String() string {
	return fmt.Sprintf("{top:%d left:%d width:%d height:%d}", r.Top, r.Left, r.Width, r.Height)
}

// ScreenPoint is a click target in absolute screen coordinates.
//
// Frame keeps the frame-local top-left corner of the match it was projected from,
// so ordering and deduplication can be checked in frame space.
type ScreenPoint struct {
	X     int
	Y     int
	Frame Point
}

// Statistics tracks run counters for the tray and the final summary.
type Statistics struct {
	StartTime  time.Time
	Iterations int
	Matches    int
	Clicks     int
	Scrolls    int
	mu         sync.RWMutex
}

// StatsSnapshot is a point-in-time copy of Statistics.
type StatsSnapshot struct {
	Iterations int
	Matches    int
	Clicks     int
	Scrolls    int
	Uptime     time.Duration
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// AddIteration records one Searching pass and the number of targets it found
func (s *Statistics) AddIteration(matches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Iterations++
	s.Matches += matches
}

// AddClick records one issued click
func (s *Statistics) AddClick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Clicks++
}

// AddScroll records one issued scroll keystroke
func (s *Statistics) AddScroll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scrolls++
}

// Snapshot returns a copy of the counters
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		Iterations: s.Iterations,
		Matches:    s.Matches,
		Clicks:     s.Clicks,
		Scrolls:    s.Scrolls,
		Uptime:     time.Since(s.StartTime),
	}
}

// ClicksPerMinute returns the click rate over the snapshot's uptime
func (s StatsSnapshot) ClicksPerMinute() float64 {
	minutes := s.Uptime.Minutes()
	if minutes == 0 {
		return 0
	}
	return float64(s.Clicks) / minutes
}
