package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/zombor/scanconvert/internal/scanconv"
)

// NewRawScan samples img as a polar scan: each column is one scan line and each
// row one depth sample, so the image width is the line count and its height the
// number of samples per line.
func NewRawScan(img image.Image, cfg scanconv.ProbeConfig) (*scanconv.RawScan, error) {
	b := img.Bounds()
	probe := scanconv.Probe{
		LineCount:      b.Dx(),
		SamplesPerLine: b.Dy(),
		ProbeConfig:    cfg,
	}
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("building raw scan from %dx%d image: %w", b.Dx(), b.Dy(), err)
	}

	pixels := make([]scanconv.Pixel, 0, probe.LineCount*probe.SamplesPerLine)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pixels = append(pixels, scanconv.Pixel{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)})
		}
	}

	return &scanconv.RawScan{Probe: probe, Pixels: pixels}, nil
}

// ToRGBA renders a converted image as an opaque RGBA image.
func ToRGBA(c *scanconv.CartesianImage) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for i, p := range c.Pixels {
		img.Pix[i*4] = p[0]
		img.Pix[i*4+1] = p[1]
		img.Pix[i*4+2] = p[2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// EncodePNG encodes a converted image as PNG.
func EncodePNG(c *scanconv.CartesianImage) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, ToRGBA(c)); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
