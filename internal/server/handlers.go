package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/journal"
	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
	"github.com/MeKo-Tech/qrharvest/internal/version"
)

const (
	formatJSON    = "json"
	formatText    = "text"
	formatCSV     = "csv"
	formatOverlay = "overlay"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// indexHandler lists the persistent index of the session's output location.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	loc, err := s.session.Location(r.Context())
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Output location unavailable: %v", err), http.StatusServiceUnavailable)
		return
	}
	keys := loc.Index().Keys()
	s.writeJSON(w, http.StatusOK, IndexResponse{
		OutputDir: loc.Dir(),
		Count:     len(keys),
		Keys:      keys,
		Session:   s.session.Captured(),
	})
}

// historyHandler serves recent journal entries.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeErrorResponse(w, "Journal is not enabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{
		SessionID: q.Get("session"),
		Decision:  strings.ToUpper(q.Get("decision")),
		Limit:     50,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeErrorResponse(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	entries, err := s.journal.Recent(r.Context(), filter)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to read journal: %v", err), http.StatusInternalServerError)
		return
	}
	newCount, dupes, err := s.journal.Counts(r.Context())
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to read journal: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, New: newCount, Dupes: dupes})
}

// resetHandler starts a new session and reloads the persistent index.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Reset failed: %v", err), http.StatusInternalServerError)
		return
	}
	loc, err := s.session.Location(r.Context())
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Output location unavailable: %v", err), http.StatusServiceUnavailable)
		return
	}
	s.logger.Info("session reset", "session", s.session.ID(), "indexed", loc.Index().Len())
	s.writeJSON(w, http.StatusOK, ResetResponse{
		Success:   true,
		SessionID: s.session.ID(),
		Indexed:   loc.Index().Len(),
	})
}

// captureImageHandler runs one uploaded image through the capture pipeline.
func (s *Server) captureImageHandler(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.parseUpload(w, r)
	if err != nil {
		framesProcessedTotal.WithLabelValues("upload", "error").Inc()
		return // error already written
	}

	img, err := utils.DecodeImageBytes(data)
	if err != nil {
		framesProcessedTotal.WithLabelValues("upload", "error").Inc()
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	if isTrue(r.FormValue("reset")) {
		if err := s.session.Reset(); err != nil {
			s.writeErrorResponse(w, fmt.Sprintf("Reset failed: %v", err), http.StatusInternalServerError)
			return
		}
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	res, err := s.pipeline.ProcessNamed(ctx, name, img, s.session)
	frameProcessingDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	if err != nil {
		framesProcessedTotal.WithLabelValues("upload", "error").Inc()
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrUnreadableFrame) {
			status = http.StatusBadRequest
		}
		s.writeErrorResponse(w, fmt.Sprintf("Capture failed: %v", err), status)
		return
	}
	framesProcessedTotal.WithLabelValues("upload", "success").Inc()

	s.writeCaptureResponse(w, r, res)
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return "", nil, err
		}
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return "", nil, err
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return "", nil, err
	}
	defer func() { _ = file.Close() }()

	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return "", nil, err
	}
	return header.Filename, data, nil
}

func (s *Server) writeCaptureResponse(w http.ResponseWriter, r *http.Request, res *pipeline.FrameResult) {
	// Determine output format: default json; allow 'format' in form or query
	format := strings.ToLower(r.FormValue("format"))
	if format == "" {
		format = strings.ToLower(r.URL.Query().Get("format"))
	}

	switch format {
	case "", formatJSON:
		resp := CaptureResponse{Success: true, Result: res}
		if res.PersistErr != nil {
			resp.Warning = fmt.Sprintf("metadata not persisted: %v", res.PersistErr)
		}
		s.writeJSON(w, http.StatusOK, resp)
	case formatText:
		out, err := pipeline.ToPlainTextFrame(res)
		if err != nil {
			http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, out+"\n")
	case formatCSV:
		out, err := pipeline.ToCSVFrames([]*pipeline.FrameResult{res})
		if err != nil {
			http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, out)
	case formatOverlay:
		s.handleOverlayOutput(w, res)
	default:
		s.writeErrorResponse(w, "Unsupported format: "+format, http.StatusBadRequest)
	}
}

// handleOverlayOutput writes the annotated frame as PNG. The capture summary
// travels in headers.
func (s *Server) handleOverlayOutput(w http.ResponseWriter, res *pipeline.FrameResult) {
	if !s.overlayEnabled {
		s.writeErrorResponse(w, "Overlay output is disabled", http.StatusBadRequest)
		return
	}
	if res.Annotated == nil {
		s.writeErrorResponse(w, "No overlay available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Capture-New", strconv.Itoa(res.NewCount()))
	w.Header().Set("X-Capture-Duplicates", strconv.Itoa(res.DuplicateCount()))
	if err := utils.EncodeImage(w, res.Annotated, "png"); err != nil {
		s.logger.Error("failed to encode overlay", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, CaptureResponse{Success: false, Error: message})
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
