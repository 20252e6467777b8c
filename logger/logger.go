// Package logger - Builds the service zap logger.
package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the logger.
type Options struct {
	// Debug enables debug level and the development encoder.
	Debug bool
	// Sampling keeps the first lines of each message per second and then every hundredth, so
	// per-frame messages cannot flood the output.
	Sampling bool
}

// New returns a JSON logger that writes debug and info to stdout and warnings and errors to
// stderr.
func New(opts Options) *zap.Logger {
	return zap.New(newCore(opts, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr)))
}

func newCore(opts Options, stdout, stderr zapcore.WriteSyncer) zapcore.Core {
	// debug and info level enabler
	outLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		if opts.Debug {
			return level == zapcore.DebugLevel || level == zapcore.InfoLevel
		}
		return level == zapcore.InfoLevel
	})

	// warn, error and fatal level enabler
	errLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= zapcore.WarnLevel
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	if opts.Debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), stdout, outLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), stderr, errLevel),
	)
	if opts.Sampling {
		core = zapcore.NewSamplerWithOptions(core, time.Second, 10, 100)
	}
	return core
}
