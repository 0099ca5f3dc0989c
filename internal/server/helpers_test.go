package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrharvest/internal/barcode"
	"github.com/MeKo-Tech/qrharvest/internal/journal"
	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
	"github.com/MeKo-Tech/qrharvest/internal/testutil"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// staticBackend reports the same codes in every frame.
type staticBackend struct{ codes []barcode.RawCode }

func (b staticBackend) DetectMulti(context.Context, image.Image) barcode.Capability {
	if len(b.codes) == 0 {
		return barcode.Empty()
	}
	return barcode.Found(b.codes...)
}

func (b staticBackend) DetectSingle(context.Context, image.Image) barcode.Capability {
	return barcode.Empty()
}

func codeAt(text string, x, y int) barcode.RawCode {
	return barcode.RawCode{
		Polygon: []image.Point{{x, y}, {x + 40, y}, {x + 40, y + 40}, {x, y + 40}},
		Text:    text,
		Decoded: true,
	}
}

type testServerOptions struct {
	codes   []barcode.RawCode
	journal *journal.Journal
	overlay bool
	upload  int64
}

func newTestServer(t *testing.T, opts testServerOptions) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	sinks := []pipeline.EventSink{MetricsSink}
	if opts.journal != nil {
		sinks = append(sinks, opts.journal)
	}
	p, err := pipeline.NewBuilder().
		WithBackend(staticBackend{codes: opts.codes}).
		WithEnhance(false).
		WithLocking(false).
		WithLogger(discardLogger()).
		WithSinks(sinks...).
		Build()
	require.NoError(t, err)

	srv, err := NewServer(Config{
		CORSOrigin:     "*",
		MaxUploadMB:    opts.upload,
		TimeoutSec:     5,
		OverlayEnabled: opts.overlay,
		OutputDir:      dir,
		Pipeline:       p,
		Journal:        opts.journal,
		Logger:         discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, dir
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, utils.EncodeImage(&buf, img, "png"))
	return buf.Bytes()
}

func whiteFrame(t *testing.T) []byte {
	return pngBytes(t, testutil.CreateTestImage(200, 200, color.White))
}

// uploadRequest builds a multipart capture request; nil data omits the file.
func uploadRequest(t *testing.T, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile("image", "frame.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/capture/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}
