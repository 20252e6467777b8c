package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func lines(b *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestLevelsAreSplitByStream(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := zap.New(newCore(Options{}, zapcore.AddSync(&stdout), zapcore.AddSync(&stderr)))

	log.Debug("hidden")
	log.Info("frame processed", zap.Int("points", 4096))
	log.Warn("not enough input points")

	out := lines(&stdout)
	require.Len(t, out, 1)
	assert.Equal(t, "frame processed", out[0]["msg"])
	assert.Equal(t, float64(4096), out[0]["points"])

	errs := lines(&stderr)
	require.Len(t, errs, 1)
	assert.Equal(t, "not enough input points", errs[0]["msg"])
}

func TestDebugEnablesDebugLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := zap.New(newCore(Options{Debug: true}, zapcore.AddSync(&stdout), zapcore.AddSync(&stderr)))

	log.Debug("rgb segmented")
	assert.Len(t, lines(&stdout), 1)
	assert.Empty(t, lines(&stderr))
}

func TestSamplingDropsRepeats(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := zap.New(newCore(Options{Sampling: true}, zapcore.AddSync(&stdout), zapcore.AddSync(&stderr)))

	for i := 0; i < 50; i++ {
		log.Info("cycle")
	}
	assert.Less(t, len(lines(&stdout)), 50)
	assert.GreaterOrEqual(t, len(lines(&stdout)), 10)
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New(Options{Debug: true, Sampling: true}))
}
