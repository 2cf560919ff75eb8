package scanconv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the logger used for conversion diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWorkers limits how many rows are converted at once.
func WithWorkers(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithBackground overrides the marker painted outside the sector.
func WithBackground(p Pixel) Option {
	return func(c *Converter) {
		c.background = p
	}
}

// Converter resamples polar scans onto a Cartesian grid using nearest-sample lookup.
// A Converter holds no per-call state and is safe for concurrent use.
type Converter struct {
	logger     *slog.Logger
	workers    int
	background Pixel
}

// NewConverter creates a Converter. Logging is disabled unless WithLogger is given.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:    runtime.GOMAXPROCS(0),
		background: Background,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert maps raw onto a new CartesianImage. The raw scan is only read. On error,
// including cancellation of ctx, no image is returned.
func (c *Converter) Convert(ctx context.Context, raw *RawScan) (*CartesianImage, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	geom, err := NewGeometry(raw.Probe)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Sector geometry",
		"real_width", geom.RealWidth,
		"real_height", geom.RealHeight,
		"sample_interval", geom.SampleInterval,
		"angle_interval", geom.AngleInterval,
	)

	width, height, err := OutputSize(raw.Probe, geom)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Output grid", "width", width, "height", height)

	out := &CartesianImage{
		Width:  width,
		Height: height,
		Pixels: make([]Pixel, width*height),
	}
	inside := make([]int, height)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for row := 0; row < height; row++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			inside[row] = c.convertRow(raw, geom, out.Pixels[row*width:(row+1)*width], row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("converting scan: %w", err)
	}

	for _, n := range inside {
		out.Inside += n
	}
	c.logger.Debug("Conversion finished", "inside_pixels", out.Inside, "total_pixels", width*height)
	return out, nil
}

// convertRow fills one output row and returns how many of its pixels were inside the sector.
func (c *Converter) convertRow(raw *RawScan, geom Geometry, dst []Pixel, row int) int {
	n := 0
	for col := range dst {
		dist, theta, ok := geom.Polar(row, col)
		if !ok || !geom.Contains(dist, theta) {
			dst[col] = c.background
			continue
		}
		line, sample := geom.SampleIndex(dist, theta)
		dst[col] = raw.At(line, sample)
		n++
	}
	return n
}
