// Package main - inspect.go
//
// Offline matching for threshold tuning.
// Runs the matcher on a saved screenshot, draws every candidate and every click
// target, and writes the annotated image (result.png by default).
//
// Usage:
//   1. Save a screenshot of the coupon page (or use --dump-frame during a run)
//   2. Run: coupon-clicker inspect screenshot.png --threshold 0.8
//   3. Check result.png and Debug.log
//
// Annotation legend:
//   - thin yellow box: every candidate above the threshold
//   - red box: match kept after deduplication
//   - green dot + white ring: click point, labelled with its click order
package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

// DefaultInspectOutput is where the annotated image is written
const DefaultInspectOutput = "result.png"

// InspectResult summarises one offline run
type InspectResult struct {
	Candidates []Point
	Targets    []ScreenPoint
}

func newInspectCmd(cfg *Config) *cobra.Command {
	output := DefaultInspectOutput
	cmd := &cobra.Command{
		Use:   "inspect <screenshot>",
		Short: "Run the matcher on a saved screenshot and write an annotated copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := InspectMode(cfg, args[0], output)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", output, "annotated image path")
	return cmd
}

// InspectMode matches cfg's pattern against the screenshot at input and writes
// the annotated result to output
func InspectMode(cfg *Config, input, output string) (*InspectResult, error) {
	LogInfo("=== Inspect Mode Started ===")

	pattern, err := LoadPattern(cfg.PatternPath)
	if err != nil {
		return nil, err
	}
	defer pattern.Close()

	frame := gocv.IMRead(input, gocv.IMReadColor)
	if frame.Empty() {
		frame.Close()
		return nil, newError(StartupFailure, "load screenshot", fmt.Errorf("cannot read image %q", input))
	}
	defer frame.Close()
	LogInfo("Screenshot loaded: %dx%d", frame.Cols(), frame.Rows())

	img, err := frame.ToImage()
	if err != nil {
		return nil, newError(MatchFailure, "convert screenshot", err)
	}

	result, err := inspectImage(NewMatcher(pattern, cfg.Threshold, cfg.DedupRadius), img)
	if err != nil {
		return nil, err
	}

	annotate(&frame, result, pattern)

	LogInfo("Saving visualization to %s...", output)
	if ok := gocv.IMWrite(output, frame); !ok {
		return nil, fmt.Errorf("write %q failed", output)
	}
	LogInfo("=== Inspect Mode Completed ===")
	return result, nil
}

// inspectImage runs the matcher over a whole image; the region is the image itself,
// so click targets are image coordinates
func inspectImage(m *Matcher, img image.Image) (*InspectResult, error) {
	candidates, err := m.Candidates(img)
	if err != nil {
		return nil, newError(MatchFailure, "find candidates", err)
	}

	b := img.Bounds()
	targets, err := m.FindMatches(img, NewRegion(b.Min.X, b.Min.Y, b.Dx(), b.Dy()))
	if err != nil {
		return nil, newError(MatchFailure, "find matches", err)
	}

	LogInfo("Threshold %.2f: %d candidate(s), %d target(s)", m.threshold, len(candidates), len(targets))
	for i, t := range targets {
		LogInfo("  #%d click (%d, %d), match corner (%d, %d)", i+1, t.X, t.Y, t.Frame.X, t.Frame.Y)
	}

	return &InspectResult{Candidates: candidates, Targets: targets}, nil
}

func annotate(img *gocv.Mat, result *InspectResult, pattern *Pattern) {
	// gocv swaps these to BGR when drawing
	red := color.RGBA{255, 0, 0, 255}
	green := color.RGBA{0, 255, 0, 255}
	white := color.RGBA{255, 255, 255, 255}
	yellow := color.RGBA{255, 255, 0, 255}

	for _, c := range result.Candidates {
		gocv.Rectangle(img, image.Rect(c.X, c.Y, c.X+pattern.Width, c.Y+pattern.Height), yellow, 1)
	}

	for i, t := range result.Targets {
		rect := image.Rect(t.Frame.X, t.Frame.Y, t.Frame.X+pattern.Width, t.Frame.Y+pattern.Height)
		gocv.Rectangle(img, rect, red, 2)

		gocv.Circle(img, image.Pt(t.X, t.Y), 4, green, -1)
		gocv.Circle(img, image.Pt(t.X, t.Y), 6, white, 1)

		gocv.PutText(img, fmt.Sprintf("#%d", i+1), image.Pt(t.Frame.X, t.Frame.Y-6),
			gocv.FontHersheyPlain, 1.0, white, 1)
	}

	gocv.PutText(img, fmt.Sprintf("candidates: %d  targets: %d", len(result.Candidates), len(result.Targets)),
		image.Pt(10, 20), gocv.FontHersheyPlain, 1.2, green, 2)
}
