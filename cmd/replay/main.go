// Command replay feeds a captured session into the segmentation stage. Each frame-<n>.cbor record
// of the capture directory is pushed, in frame order, to the stage's source endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	customlogger "github.com/nvr-ai/go-perception/logger"
	"github.com/nvr-ai/go-perception/recording"
	"github.com/nvr-ai/go-perception/transport"
)

func main() {
	var (
		dir      = flag.String("dir", "", "Capture directory holding frame-<n>.cbor records")
		endpoint = flag.String("endpoint", "tcp://*:5555", "ZeroMQ endpoint the stage pulls from")
		connect  = flag.Bool("connect", false, "Connect to the endpoint instead of binding it")
		rate     = flag.Float64("rate", 30, "Records per second; 0 sends as fast as the stage reads")
		loop     = flag.Bool("loop", false, "Restart from the first record after the last one")
		validate = flag.Bool("validate", true, "Decode every record before sending and skip the bad ones")
		debug    = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *dir == "" {
		log.Fatal("dir is required")
	}

	logger := customlogger.New(customlogger.Options{Debug: *debug})
	defer func() { _ = logger.Sync() }()

	files, err := recording.LoadDirectory(*dir)
	if err != nil {
		logger.Fatal("loading capture", zap.String("dir", *dir), zap.Error(err))
	}
	if *validate {
		files = recording.Valid(files, func(f recording.File, err error) {
			logger.Warn("skipping record", zap.String("path", f.Path), zap.Error(err))
		})
	}
	if len(files) == 0 {
		logger.Fatal("no records to replay", zap.String("dir", *dir))
	}

	pusher, err := transport.NewZMQPusher(transport.SocketConfig{Endpoint: *endpoint, Bind: !*connect})
	if err != nil {
		logger.Fatal("opening endpoint", zap.String("endpoint", *endpoint), zap.Error(err))
	}
	defer pusher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("replaying capture",
		zap.String("dir", *dir),
		zap.Int("records", len(files)),
		zap.String("endpoint", *endpoint),
		zap.Float64("rate", *rate))

	sent := 0
	for f := range recording.Replay(ctx, files, *rate, *loop) {
		if err := pusher.Push(ctx, f.Data); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Fatal("push failed", zap.Int("frame", f.Frame), zap.Error(err))
		}
		sent++
		logger.Debug("pushed record", zap.Int("frame", f.Frame), zap.Int("bytes", len(f.Data)))
	}
	logger.Info("replay finished", zap.Int("sent", sent))
}
