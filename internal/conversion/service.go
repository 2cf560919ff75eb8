package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/scanconvert/internal/imaging"
	"github.com/zombor/scanconvert/internal/scanconv"
)

// Converter turns a raw polar scan into a Cartesian image
type Converter interface {
	Convert(ctx context.Context, raw *scanconv.RawScan) (*scanconv.CartesianImage, error)
}

// IDGenerator generates unique IDs for conversions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service stores scans, converts them and records the results
type Service struct {
	db          DB
	converter   Converter
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID identifiers and the wall clock
func NewService(db DB, converter Converter, storage Storage) *Service {
	return NewServiceWithDeps(db, converter, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, converter Converter, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		converter:   converter,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long device-generated names
func sanitizeFilename(filename string) string {
	ext := unsafeChars.ReplaceAllString(filepath.Ext(filename), "")
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(whitespace.ReplaceAllString(base, " "))

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "scan"
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// ProcessScan stores a raw scan, converts it and records the result. Stored files
// are removed again if any later step fails.
func (s *Service) ProcessScan(ctx context.Context, filename string, data []byte, contentType string, cfg scanconv.ProbeConfig) (*Conversion, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	rawPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving raw scan: %w", err)
	}

	fail := func(step string, err error, paths ...string) (*Conversion, error) {
		slog.Error("Failed to process scan",
			"step", step,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		for _, p := range paths {
			if derr := s.storage.Delete(p); derr != nil {
				slog.Warn("Failed to clean up file", "filename", p, "error", derr)
			}
		}
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	img, err := imaging.Decode(data, contentType)
	if err != nil {
		return fail("decoding scan", err, rawPath)
	}

	raw, err := imaging.NewRawScan(img, cfg)
	if err != nil {
		return fail("building raw scan", err, rawPath)
	}

	out, err := s.converter.Convert(ctx, raw)
	if err != nil {
		return fail("converting scan", err, rawPath)
	}

	pngData, err := imaging.EncodePNG(out)
	if err != nil {
		return fail("encoding output", err, rawPath)
	}

	outPath, err := s.storage.Save(fmt.Sprintf("%s_converted.png", id), pngData)
	if err != nil {
		return fail("saving output", err, rawPath)
	}

	c := &Conversion{
		ID:             id,
		Filename:       rawPath,
		ContentType:    imaging.NormalizeContentType(contentType),
		OutputFilename: outPath,
		Probe:          raw.Probe,
		Width:          out.Width,
		Height:         out.Height,
		InsidePixels:   out.Inside,
		CreatedAt:      now,
	}
	if err := s.db.SaveConversion(c); err != nil {
		return fail("saving conversion to database", err, rawPath, outPath)
	}

	slog.Info("Converted scan",
		"id", id,
		"lines", raw.LineCount,
		"samples_per_line", raw.SamplesPerLine,
		"width", out.Width,
		"height", out.Height,
	)
	return c, nil
}

// GetConversion retrieves a conversion by ID
func (s *Service) GetConversion(id string) (*Conversion, error) {
	c, err := s.db.GetConversion(id)
	if err != nil {
		return nil, fmt.Errorf("getting conversion: %w", err)
	}
	return c, nil
}

// ListConversions returns all conversions
func (s *Service) ListConversions() ([]*Conversion, error) {
	conversions, err := s.db.ListConversions()
	if err != nil {
		return nil, fmt.Errorf("listing conversions: %w", err)
	}
	return conversions, nil
}

// DeleteConversion removes a conversion and both of its files
func (s *Service) DeleteConversion(id string) error {
	c, err := s.db.GetConversion(id)
	if err != nil {
		return fmt.Errorf("getting conversion for deletion: %w", err)
	}

	for _, name := range []string{c.Filename, c.OutputFilename} {
		if err := s.storage.Delete(name); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", name, "error", err)
		}
	}

	if err := s.db.DeleteConversion(id); err != nil {
		return fmt.Errorf("deleting conversion from database: %w", err)
	}
	return nil
}

// GetRawFile returns the uploaded scan and its content type
func (s *Service) GetRawFile(id string) ([]byte, string, error) {
	c, err := s.db.GetConversion(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting conversion: %w", err)
	}
	data, err := s.storage.Get(c.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting raw file: %w", err)
	}
	return data, c.ContentType, nil
}

// GetImage returns the converted PNG
func (s *Service) GetImage(id string) ([]byte, error) {
	c, err := s.db.GetConversion(id)
	if err != nil {
		return nil, fmt.Errorf("getting conversion: %w", err)
	}
	data, err := s.storage.Get(c.OutputFilename)
	if err != nil {
		return nil, fmt.Errorf("getting converted image: %w", err)
	}
	return data, nil
}
