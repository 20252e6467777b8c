// Package config - Loads the segmentation service configuration from defaults, a YAML file and
// the environment.
package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-perception/inference/providers"
	"github.com/nvr-ai/go-perception/perception"
	"github.com/nvr-ai/go-perception/pointcloud"
	"github.com/nvr-ai/go-perception/profiler"
	"github.com/nvr-ai/go-perception/transport"
)

// EnvPrefix prefixes environment overrides. PERCEPTION_STAGE_MAXDISTANCE sets stage.maxdistance.
const EnvPrefix = "PERCEPTION_"

// LogConfig controls the logger.
type LogConfig struct {
	// Sampling rate limits repeated log lines.
	Sampling bool `koanf:"sampling"`
	// ReportInterval is the period of the runtime status report; zero disables it.
	ReportInterval time.Duration `koanf:"reportinterval"`
}

// ModelConfig locates and configures the segmentation model.
type ModelConfig struct {
	Path          string           `koanf:"path"`
	WarmupRuns    int              `koanf:"warmupruns"`
	MaskThreshold float32          `koanf:"maskthreshold"`
	Providers     providers.Config `koanf:"providers"`
}

// TrackingConfig controls the websocket tracking display feed.
type TrackingConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// TransportConfig holds the stage's sockets.
type TransportConfig struct {
	Source      transport.SocketConfig `koanf:"source"`
	Publisher   transport.SocketConfig `koanf:"publisher"`
	RecvTimeout time.Duration          `koanf:"recvtimeout"`
	Buffer      int                    `koanf:"buffer"`
	Tracking    TrackingConfig         `koanf:"tracking"`
}

// AppConfig is the service configuration.
type AppConfig struct {
	Debug     bool                  `koanf:"debug"`
	Log       LogConfig             `koanf:"log"`
	Model     ModelConfig           `koanf:"model"`
	Camera    pointcloud.Intrinsics `koanf:"camera"`
	Stage     perception.Config     `koanf:"stage"`
	Transport TransportConfig       `koanf:"transport"`
}

func defaults() map[string]any {
	stage := perception.DefaultConfig()
	return map[string]any{
		"debug":                        false,
		"log.sampling":                 true,
		"log.reportinterval":           profiler.DefaultReportInterval,
		"model.warmupruns":             1,
		"model.maskthreshold":          0.5,
		"model.providers.backend":      string(providers.CPUProviderBackend),
		"camera.width":                 640,
		"camera.height":                480,
		"camera.depthscale":            1.0,
		"stage.targetlabel":            stage.TargetLabel,
		"stage.minpoints":              stage.MinPoints,
		"stage.maxdistance":            stage.MaxDistance,
		"stage.maskwidth":              stage.MaskWidth,
		"stage.maskheight":             stage.MaskHeight,
		"stage.followobject":           stage.FollowObject,
		"stage.orientation":            stage.Orientation[:],
		"stage.timerwindow":            stage.TimerWindow,
		"transport.source.endpoint":    "tcp://127.0.0.1:5555",
		"transport.source.bind":        false,
		"transport.publisher.endpoint": "tcp://*:5556",
		"transport.publisher.bind":     true,
		"transport.recvtimeout":        transport.DefaultRecvTimeout,
		"transport.buffer":             4,
		"transport.tracking.enabled":   true,
		"transport.tracking.addr":      ":8090",
	}
}

// Load builds the configuration. Later sources override earlier ones: built-in defaults, then
// the YAML file at path (skipped when path is empty), then PERCEPTION_ environment variables.
// Comma separated environment values become lists.
//
// Arguments:
//   - path: The YAML file, or "" for defaults and environment only.
//
// Returns:
//   - AppConfig: The validated configuration.
//   - error: An error if a source cannot be read or the result is invalid.
func Load(path string) (AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return AppConfig{}, errors.Wrap(err, "load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return AppConfig{}, errors.Wrapf(err, "load %s", path)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return AppConfig{}, errors.Wrap(err, "load environment")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, errors.Wrap(err, "decode configuration")
	}
	return cfg, cfg.Validate()
}

// Validate checks every section.
func (c AppConfig) Validate() error {
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Model.MaskThreshold <= 0 || c.Model.MaskThreshold >= 1 {
		return errors.Errorf("model.maskthreshold must be in (0, 1), got %v", c.Model.MaskThreshold)
	}
	if err := c.Model.Providers.Validate(); err != nil {
		return errors.Wrap(err, "model.providers")
	}
	if err := c.Camera.CheckValid(); err != nil {
		return errors.Wrap(err, "camera")
	}
	if err := c.Stage.Validate(); err != nil {
		return errors.Wrap(err, "stage")
	}
	if c.Stage.MaskWidth != 0 && (c.Stage.MaskWidth != c.Camera.Width || c.Stage.MaskHeight != c.Camera.Height) {
		return errors.Errorf("stage mask size %dx%d must match the camera %dx%d",
			c.Stage.MaskWidth, c.Stage.MaskHeight, c.Camera.Width, c.Camera.Height)
	}
	if c.Transport.Source.Endpoint == "" || c.Transport.Publisher.Endpoint == "" {
		return errors.New("transport.source.endpoint and transport.publisher.endpoint are required")
	}
	if c.Log.ReportInterval < 0 {
		return errors.Errorf("log.reportinterval must not be negative, got %v", c.Log.ReportInterval)
	}
	if c.Transport.Buffer < 0 {
		return errors.Errorf("transport.buffer must not be negative, got %d", c.Transport.Buffer)
	}
	if c.Transport.Tracking.Enabled && c.Transport.Tracking.Addr == "" {
		return errors.New("transport.tracking.addr is required when tracking is enabled")
	}
	return nil
}

const defaultConfigPath = "config/config.yaml"

// ParseConfigFlag returns the -file flag, defaulting to config/config.yaml when that file exists.
func ParseConfigFlag() string {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	path := fs.String("file", "", "configuration file")
	_ = fs.Parse(os.Args[1:])
	if *path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			return defaultConfigPath
		}
	}
	return *path
}
