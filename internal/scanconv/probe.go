package scanconv

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when a probe description cannot produce a sector.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Pixel is an opaque three channel colour record.
type Pixel [3]uint8

// Background is the default marker painted outside the scanned sector.
var Background = Pixel{0, 0, 255}

// ProbeConfig holds the transducer settings that do not depend on the sampled image.
type ProbeConfig struct {
	Depth       float64 `json:"depth"`        // scan range in real-world units
	HalfAngle   float64 `json:"half_angle"`   // degrees
	InnerRadius float64 `json:"inner_radius"` // apex to first sample
}

// Probe describes a polar scan: how many lines were swept and how each line was sampled.
type Probe struct {
	LineCount      int `json:"line_count"`
	SamplesPerLine int `json:"samples_per_line"`
	ProbeConfig
}

// Validate checks the probe invariants.
func (p Probe) Validate() error {
	if p.LineCount < 2 {
		return fmt.Errorf("line count must be at least 2, got %d: %w", p.LineCount, ErrInvalidGeometry)
	}
	if p.SamplesPerLine < 2 {
		return fmt.Errorf("samples per line must be at least 2, got %d: %w", p.SamplesPerLine, ErrInvalidGeometry)
	}
	if !(p.Depth > 0) || math.IsInf(p.Depth, 1) {
		return fmt.Errorf("depth must be positive and finite, got %g: %w", p.Depth, ErrInvalidGeometry)
	}
	if !(p.InnerRadius > 0) || math.IsInf(p.InnerRadius, 1) {
		return fmt.Errorf("inner radius must be positive and finite, got %g: %w", p.InnerRadius, ErrInvalidGeometry)
	}
	if !(p.HalfAngle > 0 && p.HalfAngle < 90) {
		return fmt.Errorf("half angle must be within (0, 90) degrees, got %g: %w", p.HalfAngle, ErrInvalidGeometry)
	}
	return nil
}

// RawScan is a sampled polar scan. Pixels is sample-major: the pixel for a given
// line and sample lives at Pixels[sample*LineCount+line], which is the row-major
// layout of an image whose columns are scan lines.
type RawScan struct {
	Probe
	Pixels []Pixel
}

// At returns the sample at the given line and depth index.
func (r *RawScan) At(line, sample int) Pixel {
	return r.Pixels[sample*r.LineCount+line]
}

// Validate checks the probe invariants and that the pixel buffer matches them.
func (r *RawScan) Validate() error {
	if err := r.Probe.Validate(); err != nil {
		return err
	}
	if want := r.LineCount * r.SamplesPerLine; len(r.Pixels) != want {
		return fmt.Errorf("pixel buffer holds %d samples, want %d: %w", len(r.Pixels), want, ErrInvalidGeometry)
	}
	return nil
}

// CartesianImage is the converted, display-ready grid. Pixels is row-major.
type CartesianImage struct {
	Width  int
	Height int
	Pixels []Pixel

	// Inside counts the pixels that fell within the scanned sector.
	Inside int
}

// At returns the pixel at the given row and column.
func (c *CartesianImage) At(row, col int) Pixel {
	return c.Pixels[row*c.Width+col]
}
