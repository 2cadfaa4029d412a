// picamd is the camera daemon: it owns the video device and serves
// frames over HTTP, a raw MJPEG TCP stream, and the 1bpp device frame
// protocol.
package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/picamd/picamd/internal/archive"
	"github.com/picamd/picamd/internal/camera"
	"github.com/picamd/picamd/internal/capture"
	"github.com/picamd/picamd/internal/config"
	"github.com/picamd/picamd/internal/deviceproto"
	"github.com/picamd/picamd/internal/httpapi"
	"github.com/picamd/picamd/internal/motion"
	"github.com/picamd/picamd/internal/streamtcp"
)

func main() {
	var (
		configPath string
		httpAddr   string
		streamAddr string
		deviceAddr string
	)

	root := &cobra.Command{
		Use:          "picamd",
		Short:        "Camera daemon serving HTTP, MJPEG stream and device frames",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the camera and serve all three transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, httpAddr, streamAddr, deviceAddr)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (defaults apply when empty)")
	serveCmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&streamAddr, "stream", "", "MJPEG stream listen address (overrides config)")
	serveCmd.Flags().StringVar(&deviceAddr, "device", "", "Device protocol listen address (overrides config)")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "picamd:", err)
		os.Exit(1)
	}
}

func run(configPath, httpAddr, streamAddr, deviceAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if streamAddr != "" {
		cfg.Stream.Addr = streamAddr
	}
	if deviceAddr != "" {
		cfg.Device.Addr = deviceAddr
	}

	logger := newLogger(cfg.Log.Level)

	src, err := camera.OpenV4L2(cfg.Camera.Device, cfg.Camera.Format, cfg.Camera.Size, logger)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer src.Close()

	w, h := src.Size()
	logger.Info("camera ready",
		"device", cfg.Camera.Device, "format", cfg.Camera.Format, "size", fmt.Sprintf("%dx%d", w, h))

	var detector *motion.Detector
	captureOpts := capture.Options{
		Quality:      cfg.Camera.Quality,
		Budget:       cfg.Budget(),
		BitmapWidth:  cfg.Device.Width,
		BitmapHeight: cfg.Device.Height,
	}
	if cfg.Motion.Enabled {
		detector = motion.NewDetector(image.Rect(0, 0, w, h), cfg.Motion.Window, cfg.Motion.MinRegion)
		captureOpts.Overlay = detector
	}
	svc := capture.New(src, captureOpts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpOpts := httpapi.Options{
		StreamInterval: cfg.StreamInterval(),
		Motion:         detector,
	}
	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()

		archiver := archive.NewArchiver(store, cfg.Archive.Workers, cfg.Archive.QueueSize, logger)
		archiver.Start(ctx)
		defer archiver.Stop()
		httpOpts.Archiver = archiver
	}

	errCh := make(chan error, 3)
	go func() {
		errCh <- httpapi.New(svc, httpOpts, logger).ListenAndServe(ctx, cfg.HTTP.Addr)
	}()
	go func() {
		errCh <- streamtcp.New(svc, cfg.StreamInterval(), logger).ListenAndServe(ctx, cfg.Stream.Addr)
	}()
	go func() {
		errCh <- deviceproto.New(svc, logger).ListenAndServe(ctx, cfg.Device.Addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
