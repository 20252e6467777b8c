package perception

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-perception/timer"
)

// Config tunes the stage.
type Config struct {
	// TargetLabel is the mask label of the object to isolate.
	TargetLabel int32 `koanf:"targetlabel"`
	// MinPoints is the fewest non-zero depth samples a frame needs; fewer is too sparse.
	MinPoints int `koanf:"minpoints"`
	// MaxDistance is the farthest nearest-point depth, in sensor units, still considered in range.
	MaxDistance int `koanf:"maxdistance"`
	// MaskWidth and MaskHeight are the depth resolution masks are resampled to. Zero uses the
	// incoming depth frame's own size.
	MaskWidth  int `koanf:"maskwidth"`
	MaskHeight int `koanf:"maskheight"`
	// FollowObject enables the tracking output.
	FollowObject bool `koanf:"followobject"`
	// Orientation is the XYZ Euler rotation in degrees applied to the centroid sent to shape
	// completion.
	Orientation [3]float64 `koanf:"orientation"`
	// TimerWindow is the number of cycles the latency average covers.
	TimerWindow int `koanf:"timerwindow"`
}

// DefaultConfig returns the settings the grasping pipeline runs with.
func DefaultConfig() Config {
	return Config{
		TargetLabel:  1,
		MinPoints:    4096,
		MaxDistance:  700,
		MaskWidth:    640,
		MaskHeight:   480,
		FollowObject: true,
		Orientation:  [3]float64{180, 0, 0},
		TimerWindow:  timer.DefaultWindow,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinPoints < 1 {
		return errors.Errorf("minpoints must be positive, got %d", c.MinPoints)
	}
	if c.MaxDistance < 1 {
		return errors.Errorf("maxdistance must be positive, got %d", c.MaxDistance)
	}
	if c.MaskWidth < 0 || c.MaskHeight < 0 {
		return errors.Errorf("invalid mask size %dx%d", c.MaskWidth, c.MaskHeight)
	}
	if (c.MaskWidth == 0) != (c.MaskHeight == 0) {
		return errors.Errorf("mask size %dx%d must set both dimensions or neither", c.MaskWidth, c.MaskHeight)
	}
	return nil
}
