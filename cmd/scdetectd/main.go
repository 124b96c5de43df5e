package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tremorstack/seisdetect/internal/catalog"
	"github.com/tremorstack/seisdetect/internal/config"
	"github.com/tremorstack/seisdetect/internal/detector"
	"github.com/tremorstack/seisdetect/internal/sink"
)

const (
	defaultConfigPath = "config/scdetectd.yaml"
	shutdownTimeout   = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	recordPath := flag.String("records", "", "Path to a JSON-Lines record file to replay")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *recordPath == "" {
		logger.Error("missing required -records flag")
		os.Exit(1)
	}

	logger.Info("starting seisdetect daemon", "config", *configPath, "records", *recordPath, "debug", *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	resultSink := sink.NewChannelSink(cfg.Sink.BufferSize)

	det, err := cat.Register(detector.NewBuilder(cfg.InstanceID, cat.Origin)).
		WithLogger(logger).
		WithSink(resultSink).
		WithLinkerParams(cfg.Detector.LinkerParams()).
		WithGapConfig(cfg.Waveform.GapConfig()).
		WithArrivalsInResult(true).
		Build()
	if err != nil {
		logger.Error("failed to build detector", "error", err)
		os.Exit(1)
	}

	src, err := newFileSource(*recordPath)
	if err != nil {
		logger.Error("failed to open record source", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stopDrain := make(chan struct{})
	detectionsDone := make(chan struct{})
	go func() {
		defer close(detectionsDone)
		drainDetections(resultSink, stopDrain, logger)
	}()

	feedErrChan := make(chan error, 1)
	go func() {
		feedErrChan <- feedLoop(ctx, det, src, logger)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		// Wait for the feed loop to return so Terminate below is never
		// called while a Feed is still running on the same Detector.
		<-feedErrChan
	case err := <-feedErrChan:
		if err != nil {
			logger.Error("feed loop stopped with error", "error", err)
		} else {
			logger.Info("record source exhausted, shutting down")
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	det.Terminate()
	resultSink.Close()
	close(stopDrain)

	select {
	case <-detectionsDone:
	case <-shutdownCtx.Done():
		logger.Warn("timed out draining detections on shutdown")
	}

	stats := resultSink.Stats()
	logger.Info("seisdetect daemon stopped", "offered", stats.Offered, "sent", stats.Sent, "dropped", stats.Dropped)
}

// drainDetections logs every Detection the sink delivers until stop is
// closed, then drains whatever is already buffered without blocking
// before returning. ChannelSink.Close deliberately leaves its channel
// open (see internal/sink), so a consumer must be told to stop rather
// than rely on range exiting on its own.
func drainDetections(s *sink.ChannelSink, stop <-chan struct{}, logger *slog.Logger) {
	logDetection := func(d detector.Detection) {
		logger.Info("detection",
			"fit", d.Fit,
			"origin_time", d.OriginTime,
			"channels_used", d.ChannelsUsed,
			"stations_used", d.StationsUsed,
		)
	}

	for {
		select {
		case d := <-s.Detections():
			logDetection(d)
		case <-stop:
			for {
				select {
				case d := <-s.Detections():
					logDetection(d)
				default:
					return
				}
			}
		}
	}
}

// feedLoop pulls Records from src and feeds them to det until src is
// exhausted, ctx is cancelled, or a non-recoverable error occurs.
func feedLoop(ctx context.Context, det *detector.Detector, src *fileSource, logger *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		rec, ok, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}

		if err := det.Feed(*rec); err != nil {
			logger.Warn("detector feed failed", "stream", rec.StreamID.String(), "error", err)
		}
	}
}
