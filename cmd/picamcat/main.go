// picamcat is the stream client: it connects to picamd's raw MJPEG TCP
// stream, reassembles frames, and drains them into a sink.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/picamd/picamd/internal/receiver"
)

func main() {
	var (
		addr      string
		queueSize int
		verbose   bool
	)

	root := &cobra.Command{
		Use:          "picamcat",
		Short:        "Receive a raw MJPEG stream and sink it to files, stills or stats",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&addr, "addr", "a", "127.0.0.1:8081", "Stream server host:port")
	root.PersistentFlags().IntVarP(&queueSize, "queue", "q", 0, "Frame queue capacity (0 for default)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	newRecv := func() (*receiver.Receiver, error) {
		logger := newLogger(verbose)
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", addr, err)
		}
		logger.Info("connected", "addr", addr)
		r := receiver.New(conn, queueSize, logger)
		r.Start()
		stopOnSignal(r)
		return r, nil
	}

	saveCmd := &cobra.Command{
		Use:   "save <file.mjpeg>",
		Short: "Concatenate frames into a single .mjpeg file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRecv()
			if err != nil {
				return err
			}
			defer r.Stop()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			frames, bytes, err := receiver.WriteStream(r.Frames(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			fmt.Printf("%d frames, %d bytes\n", frames, bytes)
			return err
		},
	}

	var maxImages int
	imagesCmd := &cobra.Command{
		Use:   "images <dir>",
		Short: "Save frames as individual JPEG files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(args[0], 0o755); err != nil {
				return err
			}
			r, err := newRecv()
			if err != nil {
				return err
			}
			defer r.Stop()

			saved, total, err := receiver.SaveFrames(r.Frames(), args[0], maxImages)
			fmt.Printf("saved %d of %d frames\n", saved, total)
			return err
		},
	}
	imagesCmd.Flags().IntVarP(&maxImages, "max", "n", 100, "Stop saving after this many frames")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count frames until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRecv()
			if err != nil {
				return err
			}
			defer r.Stop()

			n, err := receiver.Count(r.Frames(), func(n int) {
				fmt.Printf("\r%d frames", n)
			})
			fmt.Printf("\r%d frames\n", n)
			return err
		},
	}

	var (
		aviWidth  int32
		aviHeight int32
		aviFPS    float64
	)
	aviCmd := &cobra.Command{
		Use:   "avi <file.avi>",
		Short: "Mux frames into an MJPEG AVI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRecv()
			if err != nil {
				return err
			}
			defer r.Stop()

			n, err := receiver.RecordAVI(r.Frames(), args[0], aviWidth, aviHeight, aviFPS)
			fmt.Printf("%d frames\n", n)
			return err
		},
	}
	aviCmd.Flags().Int32Var(&aviWidth, "width", 640, "Frame width")
	aviCmd.Flags().Int32Var(&aviHeight, "height", 480, "Frame height")
	aviCmd.Flags().Float64Var(&aviFPS, "fps", 10, "Playback frame rate")

	root.AddCommand(saveCmd, imagesCmd, countCmd, aviCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "picamcat:", err)
		os.Exit(1)
	}
}

// stopOnSignal stops the receiver on the first SIGINT or SIGTERM; the
// sink then drains whatever the queue still holds and returns.
func stopOnSignal(r *receiver.Receiver) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		r.Stop()
	}()
}

func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
