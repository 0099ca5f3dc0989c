package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP capture server",
	Long: `Start an HTTP server that captures QR codes from uploaded images and from
frames streamed over a websocket. All endpoints share one capture session.

The server provides the following endpoints:
  POST /capture/image  - Capture codes from an uploaded image
  GET  /ws/capture     - Stream frames over a websocket
  POST /session/reset  - Start a new session and reload the index
  GET  /index          - List codes in the output location
  GET  /history        - Recent journal entries (with --journal)
  GET  /health         - Health check endpoint
  GET  /metrics        - Prometheus metrics

Examples:
  qrharvest serve
  qrharvest serve --port 8080 --output-dir ./codes
  qrharvest serve --host 0.0.0.0 --port 3000 --journal`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		maxUploadSize := cfg.Server.MaxUploadMB
		if cmd.Flags().Changed("max-upload-size") {
			maxUploadSize, _ = cmd.Flags().GetInt("max-upload-size")
		}

		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		overlayEnable := cfg.Server.OverlayEnabled
		if cmd.Flags().Changed("overlay-enable") {
			overlayEnable, _ = cmd.Flags().GetBool("overlay-enable")
		}

		queueSize := cfg.Source.QueueSize
		if cmd.Flags().Changed("queue-size") {
			queueSize, _ = cmd.Flags().GetInt("queue-size")
		}

		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		env, err := newCaptureEnv(cfg, server.MetricsSink)
		if err != nil {
			return err
		}
		defer func() { _ = env.Close() }()

		srv, err := server.NewServer(server.Config{
			Host:           host,
			Port:           port,
			CORSOrigin:     corsOrigin,
			MaxUploadMB:    int64(maxUploadSize),
			TimeoutSec:     timeout,
			OverlayEnabled: overlayEnable,
			QueueSize:      queueSize,
			Mirror:         cfg.Source.Mirror,
			OutputDir:      env.outputDir,
			Pipeline:       env.pipeline,
			Journal:        env.journal,
			Logger:         env.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		defer func() { _ = srv.Close() }()

		// Load the index up front so a locked or unreadable location fails
		// the start instead of the first request.
		if _, err := srv.Session().Location(cmd.Context()); err != nil {
			return fmt.Errorf("open output location: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		httpServer := &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(timeout) * time.Second,
			// Websocket handlers outlive the request context otherwise.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Starting capture server", "host", host, "port", port, "output", env.outputDir)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		var serveErr error
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal")
		case serveErr = <-errCh:
			if serveErr != nil {
				slog.Error("Server error", "error", serveErr)
			}
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		st := srv.Session().Stats()
		if err := srv.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}
		slog.Info("Graceful shutdown completed",
			"frames", st.Frames, "saved", st.Saved, "duplicates", st.Duplicates)
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("overlay-enable", true, "enable overlay image responses")
	serveCmd.Flags().Int("queue-size", 1, "websocket frames held while the capture step is busy")
}
