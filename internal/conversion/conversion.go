package conversion

import (
	"errors"
	"time"

	"github.com/zombor/scanconvert/internal/scanconv"
)

// ErrNotFound is returned when a conversion does not exist
var ErrNotFound = errors.New("conversion not found")

// Conversion records one polar scan converted to a Cartesian image
type Conversion struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"` // stored raw scan
	ContentType    string         `json:"content_type"`
	OutputFilename string         `json:"output_filename"` // stored PNG
	Probe          scanconv.Probe `json:"probe"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	InsidePixels   int            `json:"inside_pixels"`
	CreatedAt      time.Time      `json:"created_at"`
}
