package scanconv

import (
	"fmt"
	"math"
)

// Geometry holds the constants derived from a probe. It is never mutated after
// NewGeometry returns and may be shared freely between goroutines.
type Geometry struct {
	HalfAngleRad   float64
	SampleInterval float64 // radial distance between consecutive samples
	AngleInterval  float64 // radians between consecutive scan lines
	InnerRadius    float64
	OuterRadius    float64
	CenterToTop    float64 // apex to the top edge of the bounding rectangle
	RealWidth      float64
	RealHeight     float64

	lineCount      int
	samplesPerLine int
}

// NewGeometry derives the sector geometry of a probe.
func NewGeometry(p Probe) (Geometry, error) {
	if err := p.Validate(); err != nil {
		return Geometry{}, err
	}

	rad := p.HalfAngle * math.Pi / 180.0
	outer := p.InnerRadius + p.Depth
	centerToTop := p.InnerRadius * math.Cos(rad)

	return Geometry{
		HalfAngleRad:   rad,
		SampleInterval: p.Depth / float64(p.SamplesPerLine-1),
		AngleInterval:  2 * rad / float64(p.LineCount-1),
		InnerRadius:    p.InnerRadius,
		OuterRadius:    outer,
		CenterToTop:    centerToTop,
		RealWidth:      2 * outer * math.Sin(rad),
		RealHeight:     outer - centerToTop,
		lineCount:      p.LineCount,
		samplesPerLine: p.SamplesPerLine,
	}, nil
}

// Polar returns the distance from the apex and the angle from the vertical axis
// of output pixel (row, col). ok is false at the apex row, where the angle is
// undefined.
func (g Geometry) Polar(row, col int) (dist, theta float64, ok bool) {
	y := g.CenterToTop + float64(row)*g.SampleInterval
	x := float64(col)*g.SampleInterval - g.RealWidth/2
	if y == 0 {
		return 0, 0, false
	}
	return math.Sqrt(x*x + y*y), math.Atan(x / y), true
}

// Contains reports whether a polar position lies in the scanned sector.
// Both the angular and the radial bounds are inclusive.
func (g Geometry) Contains(dist, theta float64) bool {
	return -g.HalfAngleRad <= theta && theta <= g.HalfAngleRad &&
		g.InnerRadius <= dist && dist <= g.OuterRadius
}

// SampleIndex maps a polar position to the raw sample below it. The indices are
// clamped to the raw grid, so positions on the far boundary never index past the
// last line or sample.
func (g Geometry) SampleIndex(dist, theta float64) (line, sample int) {
	sample = clamp(int(math.Floor((dist-g.InnerRadius)/g.SampleInterval)), g.samplesPerLine-1)
	line = clamp(int(math.Floor((theta+g.HalfAngleRad)/g.AngleInterval)), g.lineCount-1)
	return line, sample
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// maxPixels bounds the output allocation.
const maxPixels = math.MaxInt32

// OutputSize returns the pixel dimensions of the converted image. Both are
// rounded up so no part of the sector's bounding rectangle is cut off.
func OutputSize(p Probe, g Geometry) (width, height int, err error) {
	h := math.Ceil(float64(p.SamplesPerLine) * g.RealHeight / p.Depth)
	if !(h > 0) || h > maxPixels {
		return 0, 0, fmt.Errorf("output height %g out of range: %w", h, ErrInvalidGeometry)
	}
	w := math.Ceil(h * g.RealWidth / g.RealHeight)
	if !(w > 0) || w > maxPixels || w*h > maxPixels {
		return 0, 0, fmt.Errorf("output size %gx%g out of range: %w", w, h, ErrInvalidGeometry)
	}
	return int(w), int(h), nil
}
