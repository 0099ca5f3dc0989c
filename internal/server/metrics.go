package server

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrharvest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qrharvest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Capture metrics
	framesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrharvest_frames_processed_total",
			Help: "Total number of frames run through the capture pipeline",
		},
		[]string{"source", "status"}, // source: upload, websocket
	)

	frameProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qrharvest_frame_processing_duration_seconds",
			Help:    "Capture pipeline duration per frame in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	captureEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrharvest_capture_events_total",
			Help: "Detected codes by decision",
		},
		[]string{"decision", "kind"}, // decision: new, duplicate, failed
	)

	codesPerFrame = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrharvest_codes_per_frame",
			Help:    "Number of codes detected per frame",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
		},
	)

	persistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrharvest_persist_failures_total",
			Help: "Metadata writes that failed after a capture",
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrharvest_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qrharvest_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrharvest_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)

	websocketFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrharvest_websocket_frames_dropped_total",
			Help: "Frames discarded because processing fell behind",
		},
	)
)

// MetricsSink counts capture outcomes of every frame the pipeline processes.
// Register it with pipeline.Builder.WithSinks.
var MetricsSink pipeline.EventSink = pipeline.SinkFunc(recordCapture)

func recordCapture(_ context.Context, res *pipeline.FrameResult) {
	if res == nil {
		return
	}
	codesPerFrame.Observe(float64(res.Detections))
	for _, e := range res.Events {
		captureEventsTotal.WithLabelValues(decisionLabel(e), e.Kind).Inc()
	}
	if res.PersistErr != nil {
		persistFailuresTotal.Inc()
	}
}
