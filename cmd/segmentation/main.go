// Command segmentation runs the segmentation stage of the grasping pipeline: it pulls RGB-D frames
// from the camera stage, isolates the target object and publishes the results for the visualizer,
// shape completion and the 3D tracking display.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-perception/config"
	"github.com/nvr-ai/go-perception/inference"
	customlogger "github.com/nvr-ai/go-perception/logger"
	"github.com/nvr-ai/go-perception/perception"
	"github.com/nvr-ai/go-perception/profiler"
	"github.com/nvr-ai/go-perception/transport"
)

func main() {
	cfg, err := config.Load(config.ParseConfigFlag())
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	logger := customlogger.New(customlogger.Options{Debug: cfg.Debug, Sampling: cfg.Log.Sampling})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Error("segmentation stage stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("segmentation stage shut down")
}

func run(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) error {
	runner, err := inference.Load(cfg.Model.Path,
		inference.ONNXOpener{Providers: cfg.Model.Providers, Logger: logger},
		inference.WithLogger(logger),
		inference.WithWarmupRuns(cfg.Model.WarmupRuns),
	)
	if err != nil {
		return err
	}
	defer runner.Close()

	segmenter, err := inference.NewModelSegmenter(runner, inference.WithMaskThreshold(cfg.Model.MaskThreshold))
	if err != nil {
		return err
	}

	publisher, err := transport.NewZMQPublisher(cfg.Transport.Publisher, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	router := transport.NewRouter().
		Handle(perception.ChannelVisualizer, publisher).
		Handle(perception.ChannelShapeCompletion, publisher).
		Handle(perception.ChannelTracking, publisher)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Transport.Tracking.Enabled {
		hub := transport.NewTrackingHub(logger)
		router.Handle(perception.ChannelTracking, hub)
		g.Go(func() error {
			return hub.Serve(ctx, cfg.Transport.Tracking.Addr)
		})
	}

	camera := cfg.Camera
	stage, err := perception.NewStage(cfg.Stage, segmenter, &camera, router, logger.Named("stage"))
	if err != nil {
		return err
	}

	if cfg.Log.ReportInterval > 0 {
		rp := profiler.NewRuntimeProfiler(cfg.Log.ReportInterval, logger.Named("profiler"))
		rp.AddMetricsCollector(stage)
		g.Go(func() error {
			return rp.Run(ctx)
		})
	}

	source, err := transport.NewZMQSource(cfg.Transport.Source, cfg.Transport.RecvTimeout, logger)
	if err != nil {
		return err
	}
	frames := source.Stream(ctx, cfg.Transport.Buffer)

	logger.Info("segmentation stage started",
		zap.String("model", cfg.Model.Path),
		zap.String("backend", string(cfg.Model.Providers.Backend)),
		zap.String("source", cfg.Transport.Source.Endpoint),
		zap.String("publisher", cfg.Transport.Publisher.Endpoint),
		zap.Bool("follow_object", cfg.Stage.FollowObject))

	g.Go(func() error {
		return stage.Run(ctx, frames)
	})
	return g.Wait()
}
