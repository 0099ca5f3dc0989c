package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrharvest/internal/barcode"
	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/journal"
	"github.com/MeKo-Tech/qrharvest/internal/store"
)

func decodeCapture(t *testing.T, w *httptest.ResponseRecorder) CaptureResponse {
	t.Helper()
	var resp CaptureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestNewServerRequiresPipeline(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestServer_HealthHandler(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{name: "GET request success", method: http.MethodGet, expectedStatus: http.StatusOK, checkResponse: true},
		{name: "POST request not allowed", method: http.MethodPost, expectedStatus: http.StatusMethodNotAllowed},
		{name: "PUT request not allowed", method: http.MethodPut, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, httptest.NewRequest(tt.method, "/health", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.checkResponse {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Version)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{})

	w := serve(srv, httptest.NewRequest(http.MethodOptions, "/capture/image", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, w.Body.String())
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "trace-42")
	w = serve(srv, req)
	assert.Equal(t, "trace-42", w.Header().Get(requestIDHeader))
}

func TestCaptureImageNewThenDuplicate(t *testing.T) {
	srv, dir := newTestServer(t, testServerOptions{codes: []barcode.RawCode{codeAt("A", 20, 20)}})

	w := serve(srv, uploadRequest(t, whiteFrame(t), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeCapture(t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Result.Events, 1)
	ev := resp.Result.Events[0]
	assert.Equal(t, dedup.New, ev.Decision)
	assert.Equal(t, "A", ev.Content)
	assert.Equal(t, "frame.png", resp.Result.Source)
	assert.FileExists(t, ev.SavedPath)
	assert.Equal(t, dir, filepath.Dir(ev.SavedPath))

	w = serve(srv, uploadRequest(t, whiteFrame(t), nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeCapture(t, w)
	require.Len(t, resp.Result.Events, 1)
	assert.Equal(t, dedup.Duplicate, resp.Result.Events[0].Decision)
	assert.Equal(t, dedup.ReasonSession, resp.Result.Events[0].Reason)
	assert.Empty(t, resp.Result.Events[0].SavedPath)

	meta, err := store.ReadMetadata(filepath.Join(dir, store.MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, meta.Contents)
}

func TestCaptureImageResetField(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{codes: []barcode.RawCode{codeAt("A", 20, 20)}})

	require.Equal(t, http.StatusOK, serve(srv, uploadRequest(t, whiteFrame(t), nil)).Code)
	first := srv.Session().ID()

	w := serve(srv, uploadRequest(t, whiteFrame(t), map[string]string{"reset": "true"}))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeCapture(t, w)
	assert.NotEqual(t, first, resp.Result.SessionID)
	assert.Equal(t, dedup.ReasonIndex, resp.Result.Events[0].Reason)
}

func TestCaptureImageFormats(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{
		codes:   []barcode.RawCode{codeAt("A", 20, 20), codeAt("B", 120, 120)},
		overlay: true,
	})

	t.Run("text", func(t *testing.T) {
		w := serve(srv, uploadRequest(t, whiteFrame(t), map[string]string{"format": "text"}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "#1 NEW A -> ")
		assert.Contains(t, w.Body.String(), "#2 NEW B -> ")
	})

	t.Run("csv", func(t *testing.T) {
		w := serve(srv, uploadRequest(t, whiteFrame(t), map[string]string{"format": "csv"}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		assert.Len(t, lines, 3)
		assert.Contains(t, lines[1], "DUPLICATE")
	})

	t.Run("overlay", func(t *testing.T) {
		w := serve(srv, uploadRequest(t, whiteFrame(t), map[string]string{"format": "overlay"}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, "0", w.Header().Get("X-Capture-New"))
		assert.Equal(t, "2", w.Header().Get("X-Capture-Duplicates"))
		img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 200, img.Bounds().Dx())
	})

	t.Run("unsupported", func(t *testing.T) {
		w := serve(srv, uploadRequest(t, whiteFrame(t), map[string]string{"format": "xml"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeCapture(t, w).Error, "Unsupported format")
	})
}

func TestCaptureImageOverlayDisabled(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{})
	w := serve(srv, uploadRequest(t, whiteFrame(t), map[string]string{"format": "overlay"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Overlay output is disabled", decodeCapture(t, w).Error)
}

func TestCaptureImageBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{upload: 1})

	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name:    "no file",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, nil, map[string]string{"format": "json"}) },
			status:  http.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name:    "not an image",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, []byte("not an image"), nil) },
			status:  http.StatusBadRequest,
			message: "Invalid image format",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/capture/image", strings.NewReader("{}"))
			},
			status:  http.StatusBadRequest,
			message: "Failed to parse form data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, tt.req(t))
			assert.Equal(t, tt.status, w.Code)
			resp := decodeCapture(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Error)
		})
	}

	t.Run("too large", func(t *testing.T) {
		big := bytes.Repeat([]byte{0xFF}, 2*1024*1024)
		w := serve(srv, uploadRequest(t, big, nil))
		assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
		assert.False(t, decodeCapture(t, w).Success)
	})

	t.Run("wrong method", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/capture/image", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestIndexAndReset(t *testing.T) {
	srv, dir := newTestServer(t, testServerOptions{codes: []barcode.RawCode{codeAt("A", 20, 20)}})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/index", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var idx IndexResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &idx))
	assert.Equal(t, dir, idx.OutputDir)
	assert.Zero(t, idx.Count)

	require.Equal(t, http.StatusOK, serve(srv, uploadRequest(t, whiteFrame(t), nil)).Code)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/index", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &idx))
	assert.Equal(t, 1, idx.Count)
	assert.Equal(t, []string{"A"}, idx.Keys)
	assert.Equal(t, []string{"A"}, idx.Session)

	before := srv.Session().ID()
	w = serve(srv, httptest.NewRequest(http.MethodPost, "/session/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var reset ResetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reset))
	assert.True(t, reset.Success)
	assert.NotEqual(t, before, reset.SessionID)
	assert.Equal(t, 1, reset.Indexed)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/index", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &idx))
	assert.Empty(t, idx.Session)

	resp := decodeCapture(t, serve(srv, uploadRequest(t, whiteFrame(t), nil)))
	require.Len(t, resp.Result.Events, 1)
	assert.Equal(t, dedup.Duplicate, resp.Result.Events[0].Decision)
	assert.Equal(t, dedup.ReasonIndex, resp.Result.Events[0].Reason)
}

func TestIndexUnavailable(t *testing.T) {
	srv, dir := newTestServer(t, testServerOptions{})
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	require.NoError(t, srv.Session().SetOutputDir(filepath.Join(blocker, "out")))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/index", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistory(t *testing.T) {
	t.Run("journal disabled", func(t *testing.T) {
		srv, _ := newTestServer(t, testServerOptions{})
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/history", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("entries", func(t *testing.T) {
		j, err := journal.Open(filepath.Join(t.TempDir(), "history.db"), journal.WithLogger(discardLogger()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = j.Close() })

		srv, _ := newTestServer(t, testServerOptions{codes: []barcode.RawCode{codeAt("A", 20, 20)}, journal: j})
		require.Equal(t, http.StatusOK, serve(srv, uploadRequest(t, whiteFrame(t), nil)).Code)
		require.Equal(t, http.StatusOK, serve(srv, uploadRequest(t, whiteFrame(t), nil)).Code)

		w := serve(srv, httptest.NewRequest(http.MethodGet, "/history?limit=10", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var hist HistoryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
		require.Len(t, hist.Entries, 2)
		assert.Equal(t, "DUPLICATE", hist.Entries[0].Decision)
		assert.Equal(t, "NEW", hist.Entries[1].Decision)
		assert.Equal(t, 1, hist.New)
		assert.Equal(t, 1, hist.Dupes)

		w = serve(srv, httptest.NewRequest(http.MethodGet, "/history?decision=new", nil))
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
		require.Len(t, hist.Entries, 1)
		assert.Equal(t, "A", hist.Entries[0].Content)

		w = serve(srv, httptest.NewRequest(http.MethodGet, "/history?limit=zero", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testServerOptions{codes: []barcode.RawCode{codeAt("M", 20, 20)}})
	require.Equal(t, http.StatusOK, serve(srv, uploadRequest(t, whiteFrame(t), nil)).Code)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "qrharvest_capture_events_total")
	assert.Contains(t, body, `qrharvest_frames_processed_total{source="upload",status="success"}`)
	assert.Contains(t, body, `endpoint="/capture/image"`)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded list", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, remote: "1.1.1.1:80", want: "10.0.0.1"},
		{name: "forwarded single", headers: map[string]string{"X-Forwarded-For": " 10.0.0.3 "}, remote: "1.1.1.1:80", want: "10.0.0.3"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "10.0.0.4"}, remote: "1.1.1.1:80", want: "10.0.0.4"},
		{name: "remote addr", remote: "192.168.1.5:4242", want: "192.168.1.5"},
		{name: "remote without port", remote: "192.168.1.6", want: "192.168.1.6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	srv := &Server{corsOrigin: "https://app.example"}
	req := httptest.NewRequest(http.MethodGet, "/ws/capture", nil)
	assert.True(t, srv.checkOrigin(req))
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, srv.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, srv.checkOrigin(req))
}
