package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/journal"
	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
)

// Server holds the HTTP server state and dependencies. All capture endpoints
// share one session, so a code seen over the websocket is a duplicate when
// it is uploaded afterwards.
type Server struct {
	pipeline       *pipeline.Pipeline
	session        *pipeline.Session
	journal        *journal.Journal
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	corsOrigin     string
	maxUploadMB    int64
	timeoutSec     int
	overlayEnabled bool
	queueSize      int
	mirror         bool
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	OverlayEnabled bool
	// QueueSize is the websocket frame hand-off capacity.
	QueueSize int
	// Mirror flips websocket frames left to right.
	Mirror bool
	// OutputDir is the output location of the server session.
	OutputDir string

	Pipeline *pipeline.Pipeline
	// Journal is optional; when set /history serves recent entries.
	Journal *journal.Journal
	Logger  *slog.Logger
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type IndexResponse struct {
	OutputDir string   `json:"output_dir"`
	Count     int      `json:"count"`
	Keys      []string `json:"keys"`
	// Session lists identities captured since the last reset.
	Session []string `json:"session"`
}

type CaptureResponse struct {
	Success bool                  `json:"success"`
	Result  *pipeline.FrameResult `json:"result,omitempty"`
	Warning string                `json:"warning,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type ResetResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Indexed   int    `json:"indexed"`
}

type HistoryResponse struct {
	Entries []journal.Entry `json:"entries"`
	New     int             `json:"new"`
	Dupes   int             `json:"duplicates"`
}

// NewServer creates a capture server around an already built pipeline.
func NewServer(config Config) (*Server, error) {
	if config.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 20
	}
	queue := config.QueueSize
	if queue <= 0 {
		queue = 1
	}

	s := &Server{
		pipeline:       config.Pipeline,
		session:        config.Pipeline.NewSession(config.OutputDir),
		journal:        config.Journal,
		logger:         logger,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    maxUpload,
		timeoutSec:     config.TimeoutSec,
		overlayEnabled: config.OverlayEnabled,
		queueSize:      queue,
		mirror:         config.Mirror,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Session returns the capture session shared by all endpoints.
func (s *Server) Session() *pipeline.Session { return s.session }

// Close releases server resources.
func (s *Server) Close() error {
	if s.session != nil {
		return s.session.Close()
	}
	return nil
}

// Router returns a router with every route installed.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	s.SetupRoutes(r)
	return r
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(r *mux.Router) {
	r.Handle("/health", s.api(s.healthHandler)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/index", s.api(s.indexHandler)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/history", s.api(s.historyHandler)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/capture/image", s.api(s.captureImageHandler)).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/session/reset", s.api(s.resetHandler)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/ws/capture", s.captureWebSocketHandler).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.corsOrigin == "" || s.corsOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.corsOrigin
}

// decisionLabel is the metric label for one event.
func decisionLabel(e pipeline.CaptureEvent) string {
	switch {
	case e.Err != nil || e.Error != "":
		return "failed"
	case e.Decision == dedup.New:
		return "new"
	default:
		return "duplicate"
	}
}
