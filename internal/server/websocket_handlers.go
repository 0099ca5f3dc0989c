package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/qrharvest/internal/source"
	"github.com/MeKo-Tech/qrharvest/internal/stream"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketMessage represents a message sent over WebSocket.
type WebSocketMessage struct {
	Type      string `json:"type"` // "frame", "reset", "stats", "error"
	Payload   any    `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// WebSocketControl is a text message from the client. Frames themselves are
// sent as binary messages holding an encoded image.
type WebSocketControl struct {
	Type string `json:"type"` // "reset" or "stats"
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsWriter serializes writes from the reader and processing goroutines.
type wsWriter struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
	raw  *websocket.Conn
}

func (w *wsWriter) send(msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.raw != nil {
		_ = w.raw.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

func (w *wsWriter) sendError(errorType, message string) error {
	return w.send(WebSocketMessage{Type: "error", Error: message, ErrorType: errorType})
}

// captureWebSocketHandler streams frames from the client through the capture
// pipeline. Frames arriving faster than they are processed replace the
// queued one; every processed frame is answered with its result.
func (s *Server) captureWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection to websocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	client := getClientIP(r)
	s.logger.Info("websocket connection established", "client", client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// A blocked read only returns once the connection is closed.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	go keepAlive(ctx, conn)

	out := &wsWriter{conn: conn, raw: conn}
	var src source.Source = &wsSource{server: s, conn: conn, out: out}
	if s.mirror || isTrue(r.URL.Query().Get("mirror")) {
		src = source.Mirror(src)
	}

	runner := stream.NewRunner(stream.WithQueueSize(s.queueSize), stream.WithLogger(s.logger))
	st, err := runner.Run(ctx, src, s.wsFrameHandler(out))
	if err != nil {
		s.logger.Warn("websocket stream failed", "client", client, "error", err)
	}
	websocketFramesDropped.Add(float64(st.Dropped))

	s.logger.Info("websocket connection closed",
		"client", client,
		"processed", st.Processed,
		"dropped", st.Dropped,
		"empty", st.Empty)
}

func (s *Server) wsFrameHandler(out *wsWriter) stream.Handler {
	return func(ctx context.Context, f source.Frame) error {
		start := time.Now()
		res, err := s.pipeline.ProcessNamed(ctx, f.Name, f.Image, s.session)
		frameProcessingDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
		if err != nil {
			framesProcessedTotal.WithLabelValues("websocket", "error").Inc()
			_ = out.sendError("processing_error", fmt.Sprintf("frame %d: %v", f.Seq, err))
			return err
		}
		framesProcessedTotal.WithLabelValues("websocket", "success").Inc()
		return out.send(WebSocketMessage{Type: "frame", Payload: res})
	}
}

func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// wsSource reads frames from a websocket connection. Text messages are
// control requests and are answered inline.
type wsSource struct {
	server *Server
	conn   *websocket.Conn
	out    *wsWriter
	seq    int
}

func (src *wsSource) Next(ctx context.Context) (source.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return source.Frame{}, err
		}
		mt, data, err := src.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				src.server.logger.Warn("websocket read failed", "error", err)
			}
			return source.Frame{}, source.ErrEndOfStream
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch mt {
		case websocket.BinaryMessage:
			src.seq++
			img, err := utils.DecodeImageBytes(data)
			if err != nil {
				_ = src.out.sendError("invalid_frame", fmt.Sprintf("frame %d: %v", src.seq, err))
				return source.Frame{}, fmt.Errorf("frame %d: %w: %w", src.seq, source.ErrEmptyFrame, err)
			}
			return source.Frame{
				Image: img,
				Name:  fmt.Sprintf("ws frame %d", src.seq),
				Seq:   src.seq,
				At:    time.Now(),
			}, nil
		case websocket.TextMessage:
			src.control(data)
		}
	}
}

func (src *wsSource) control(data []byte) {
	var req WebSocketControl
	if err := json.Unmarshal(data, &req); err != nil {
		_ = src.out.sendError("invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	sess := src.server.session
	switch req.Type {
	case "reset":
		if err := sess.Reset(); err != nil {
			_ = src.out.sendError("reset_failed", err.Error())
			return
		}
		_ = src.out.send(WebSocketMessage{Type: "reset", Payload: map[string]string{"session_id": sess.ID()}})
	case "stats":
		_ = src.out.send(WebSocketMessage{Type: "stats", Payload: sess.Stats()})
	default:
		_ = src.out.sendError("invalid_request", "Unsupported request type: "+req.Type)
	}
}

func (src *wsSource) Close() error { return nil }
