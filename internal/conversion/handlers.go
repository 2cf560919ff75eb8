package conversion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/zombor/scanconvert/internal/imaging"
	"github.com/zombor/scanconvert/internal/scanconv"
)

// maxUploadSize bounds multipart uploads
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes a plain error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// lookupError maps a service lookup failure to a status code
func lookupError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, ErrNotFound) {
		corsError(w, message, http.StatusNotFound)
		return
	}
	slog.Error("Error looking up conversion", "error", err)
	corsError(w, "Internal server error", http.StatusInternalServerError)
}

// probeConfig reads optional probe settings from the form, falling back to defaults
func (s *Server) probeConfig(r *http.Request) (scanconv.ProbeConfig, error) {
	cfg := s.defaults
	fields := []struct {
		name string
		dst  *float64
	}{
		{"depth", &cfg.Depth},
		{"half_angle", &cfg.HalfAngle},
		{"inner_radius", &cfg.InnerRadius},
	}
	for _, f := range fields {
		v := strings.TrimSpace(r.FormValue(f.name))
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q", f.name, v)
		}
		*f.dst = parsed
	}
	return cfg, nil
}

// handleListConversions returns all conversions
func (s *Server) handleListConversions(w http.ResponseWriter, r *http.Request) {
	conversions, err := s.service.ListConversions()
	if err != nil {
		slog.Error("Error listing conversions", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, conversions)
}

// handleUploadScan stores and converts an uploaded scan
func (s *Server) handleUploadScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file was selected. Please choose a scan to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	cfg, err := s.probeConfig(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = imaging.ContentTypeForFilename(header.Filename)
	}

	c, err := s.service.ProcessScan(r.Context(), header.Filename, data, contentType, cfg)
	if err != nil {
		slog.Error("Error processing scan", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// handleGetConversion returns a single conversion record
func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetConversion(r.PathValue("id"))
	if err != nil {
		lookupError(w, err, "Conversion not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleGetImage returns the converted PNG
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetImage(r.PathValue("id"))
	if err != nil {
		lookupError(w, err, "Image not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// handleGetRawFile returns the uploaded scan as it was received
func (s *Server) handleGetRawFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetRawFile(r.PathValue("id"))
	if err != nil {
		lookupError(w, err, "File not found")
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteConversion deletes a conversion and its files
func (s *Server) handleDeleteConversion(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteConversion(r.PathValue("id")); err != nil {
		lookupError(w, err, "Conversion not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
