// Package main - analyzer.go
//
// Template matching module. Turns a captured frame into an ordered list of click
// targets.
//
// Pipeline (FindMatches):
//   1. Normalize: frame -> single-channel intensity, same color space as the pattern
//   2. Correlate: OpenCV TM_CCOEFF_NORMED over every valid offset, producing a score
//      map of (frameW - w + 1) x (frameH - h + 1) values in [-1, 1]
//   3. Threshold: offsets scoring >= threshold, in row-major discovery order
//   4. Deduplicate: greedy, a candidate closer than the radius to an accepted point
//      is dropped
//   5. Order: bottom-most first (descending frame Y, stable)
//   6. Project: region origin + pattern half-size, so targets are match centres
//
// Why bottom-to-top:
// Clicking an element usually removes it and reflows everything below it upward.
// Working from the bottom keeps the positions of not-yet-clicked elements valid.
//
// Native memory:
// Every gocv.Mat allocated here is closed before returning. Pattern owns its Mat
// and must be closed by whoever loaded it.
package main

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// Default matching parameters
const (
	DefaultThreshold   = 0.7
	DefaultDedupRadius = 10.0
)

// Pattern is the grayscale reference image compared against every frame.
// Immutable once loaded.
type Pattern struct {
	Name   string
	Width  int
	Height int
	mat    gocv.Mat
}

// LoadPattern reads an image file from disk as grayscale.
//
// Returns a StartupFailure when the file is missing or cannot be decoded.
func LoadPattern(path string) (*Pattern, error) {
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		mat.Close()
		return nil, newError(StartupFailure, "load pattern", fmt.Errorf("cannot read image %q", path))
	}
	if err := checkTexture(mat, path); err != nil {
		mat.Close()
		return nil, err
	}

	LogInfo("Pattern loaded: %s (%dx%d)", path, mat.Cols(), mat.Rows())
	return &Pattern{
		Name:   path,
		Width:  mat.Cols(),
		Height: mat.Rows(),
		mat:    mat,
	}, nil
}

// NewPatternFromImage builds a pattern from an in-memory image
func NewPatternFromImage(name string, img image.Image) (*Pattern, error) {
	mat, err := toGrayMat(img)
	if err != nil {
		return nil, newError(StartupFailure, "load pattern", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, newError(StartupFailure, "load pattern", fmt.Errorf("empty image %q", name))
	}
	if err := checkTexture(mat, name); err != nil {
		mat.Close()
		return nil, err
	}
	return &Pattern{
		Name:   name,
		Width:  mat.Cols(),
		Height: mat.Rows(),
		mat:    mat,
	}, nil
}

// checkTexture rejects a single-colour pattern. TM_CCOEFF_NORMED divides by the
// pattern's standard deviation, so a flat pattern scores 0 everywhere and a run
// would end in Done with the target still on screen.
func checkTexture(mat gocv.Mat, name string) error {
	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()

	gocv.MeanStdDev(mat, &mean, &stddev)
	if stddev.GetDoubleAt(0, 0) == 0 {
		return newError(StartupFailure, "load pattern",
			fmt.Errorf("%w: %q", ErrFlatPattern, name))
	}
	return nil
}

// Close releases the native buffer
func (p *Pattern) Close() error {
	return p.mat.Close()
}

// Matcher locates the pattern in frames.
type Matcher struct {
	pattern   *Pattern
	threshold float32
	radius    float64
}

// NewMatcher creates a matcher for the pattern.
//
// Parameters:
//   - pattern: reference image, must stay open while the matcher is used
//   - threshold: similarity cutoff in [0, 1]
//   - radius: dedup radius in pixels
func NewMatcher(pattern *Pattern, threshold, radius float64) *Matcher {
	return &Matcher{
		pattern:   pattern,
		threshold: float32(threshold),
		radius:    radius,
	}
}

// FindMatches returns the deduplicated click targets for one frame, bottom-most first.
//
// The frame must have been captured over region; the returned points are in
// absolute screen coordinates. An empty result means nothing scored above the
// threshold.
func (m *Matcher) FindMatches(frame image.Image, region Region) ([]ScreenPoint, error) {
	candidates, err := m.Candidates(frame)
	if err != nil {
		return nil, err
	}

	unique := dedupe(candidates, m.radius)
	orderBottomUp(unique)

	LogDebug("FindMatches: %d candidates, %d unique", len(candidates), len(unique))
	return project(unique, region, m.pattern.Width, m.pattern.Height), nil
}

// Candidates returns every frame-local offset whose score reaches the threshold,
// in row-major order. Steps 1-3 of the pipeline.
func (m *Matcher) Candidates(frame image.Image) ([]Point, error) {
	size := frame.Bounds().Size()
	if size.X < m.pattern.Width || size.Y < m.pattern.Height {
		return nil, fmt.Errorf("%w: frame %dx%d, pattern %dx%d",
			ErrFrameTooSmall, size.X, size.Y, m.pattern.Width, m.pattern.Height)
	}

	timer := NewTimer("match")
	defer timer.Log()

	gray, err := toGrayMat(frame)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	scores := gocv.NewMat()
	defer scores.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(gray, m.pattern.mat, &scores, gocv.TmCcoeffNormed, mask)

	data, err := scores.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read score map: %w", err)
	}

	cols := scores.Cols()
	rows := scores.Rows()
	candidates := make([]Point, 0)
	for y := 0; y < rows; y++ {
		row := data[y*cols : (y+1)*cols]
		for x, score := range row {
			if score >= m.threshold {
				candidates = append(candidates, Point{X: x, Y: y})
			}
		}
	}
	return candidates, nil
}

// dedupe keeps a candidate only if it is at least radius away from every point
// already kept. Input order decides which member of a cluster survives.
func dedupe(candidates []Point, radius float64) []Point {
	unique := make([]Point, 0)
	for _, c := range candidates {
		distinct := true
		for _, u := range unique {
			if c.Distance(u) < radius {
				distinct = false
				break
			}
		}
		if distinct {
			unique = append(unique, c)
		}
	}
	return unique
}

// orderBottomUp sorts in place by descending Y; ties keep discovery order
func orderBottomUp(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Y > points[j].Y
	})
}

// project converts frame-local top-left corners into screen-space centres
func project(points []Point, region Region, w, h int) []ScreenPoint {
	out := make([]ScreenPoint, len(points))
	for i, p := range points {
		out[i] = ScreenPoint{
			X:     region.Left + p.X + w/2,
			Y:     region.Top + p.Y + h/2,
			Frame: p,
		}
	}
	return out
}

// toGrayMat converts an image to a single-channel 8-bit Mat
func toGrayMat(img image.Image) (gocv.Mat, error) {
	if g, ok := img.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(g)
	}

	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("convert frame: %w", err)
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}
