package perception

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-perception/images"
	"github.com/nvr-ai/go-perception/pointcloud"
	"github.com/nvr-ai/go-perception/signals"
	"github.com/nvr-ai/go-perception/timer"
)

// Segmenter labels every pixel of an RGB frame. It may report the mask as absent.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (signals.Value[*images.Mask], error)
}

// Projector back-projects a depth frame into a point cloud, skipping zero samples.
type Projector interface {
	Project(depth *images.DepthMap) (pointcloud.Cloud, error)
}

// Stage runs the segmentation cycle. A Stage processes one frame at a time.
type Stage struct {
	cfg         Config
	segmenter   Segmenter
	projector   Projector
	writer      Writer
	logger      *zap.Logger
	orientation pointcloud.Orientation
	timer       *timer.Rolling
	follow      atomic.Bool
}

// NewStage wires a stage.
//
// Arguments:
//   - cfg: The stage configuration.
//   - segmenter: The segmentation model.
//   - projector: The depth camera projection.
//   - writer: The sink for all output channels.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *Stage: The stage.
//   - error: An error if cfg is invalid or a dependency is missing.
func NewStage(cfg Config, segmenter Segmenter, projector Projector, writer Writer, logger *zap.Logger) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if segmenter == nil || projector == nil || writer == nil {
		return nil, errors.New("segmenter, projector and writer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stage{
		cfg:         cfg,
		segmenter:   segmenter,
		projector:   projector,
		writer:      writer,
		logger:      logger,
		orientation: pointcloud.EulerXYZ(cfg.Orientation[0], cfg.Orientation[1], cfg.Orientation[2]),
		timer:       timer.New(cfg.TimerWindow),
	}
	s.follow.Store(cfg.FollowObject)
	return s, nil
}

// SetFollowObject toggles the tracking output for subsequent cycles.
func (s *Stage) SetFollowObject(on bool) {
	s.follow.Store(on)
}

// Timer exposes the cycle latency statistics.
func (s *Stage) Timer() *timer.Rolling {
	return s.timer
}

// CollectMetrics reports the cycle statistics for periodic status reports.
func (s *Stage) CollectMetrics() map[string]float64 {
	return map[string]float64{
		"stage_cycles":     float64(s.timer.Count()),
		"stage_latency_ms": float64(s.timer.Mean()) / float64(time.Millisecond),
		"stage_fps":        s.timer.FPS(),
	}
}

// Process runs one cycle on in.
//
// When rgb or depth is absent, nothing is written and a copy of in is returned. Otherwise the
// outcome is delivered through the writer and the returned frame is nil. Process zeroes the
// non-target samples of in's depth map in place; the visualizer receives the unfiltered copy.
//
// Arguments:
//   - ctx: Passed to the segmenter and the writer.
//   - in: The camera record.
//
// Returns:
//   - *Frame: The copied input on the pass-through path, nil otherwise.
//   - error: A segmentation, projection or delivery failure. Nothing is retried.
func (s *Stage) Process(ctx context.Context, in Frame) (*Frame, error) {
	output := in.Clone()

	s.timer.Start()
	defer s.timer.Stop()
	s.logger.Debug("read camera input")

	rgb, rgbOK := in.RGB.Get()
	depth, depthOK := in.Depth.Get()
	if !rgbOK || !depthOK || rgb == nil || depth == nil {
		return &output, nil
	}
	if err := depth.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid depth frame")
	}

	mask, err := s.segmenter.Segment(ctx, rgb)
	if err != nil {
		return nil, errors.Wrap(err, "segmentation failed")
	}
	if m, ok := mask.Get(); ok && m != nil {
		w, h := s.cfg.MaskWidth, s.cfg.MaskHeight
		if w == 0 {
			w, h = depth.Width, depth.Height
		}
		resized, err := m.ResizeNearest(w, h)
		if err != nil {
			return nil, errors.Wrap(err, "mask resize failed")
		}
		mask = signals.Present(resized)
		s.logger.Debug("rgb segmented")

		if err := depth.Filter(resized, s.cfg.TargetLabel); err != nil {
			return nil, errors.Wrap(err, "depth filtering failed")
		}
		s.logger.Debug("depth segmented")
	}

	if n := depth.CountNonZero(); n < s.cfg.MinPoints {
		s.logger.Warn("not enough input points, skipping reconstruction",
			zap.Int("points", n), zap.Int("min_points", s.cfg.MinPoints))
		return nil, s.emit(ctx,
			VisualizerMessage{Frame: output, Mask: signals.NotObserved[*images.Mask]()},
			ShapeCompletionMessage{
				SegmentedPC: signals.NotObserved[pointcloud.Cloud](),
				ObjDistance: signals.NotObserved[int](),
			}, nil)
	}

	nearest, _ := depth.MinNonZero()
	distance := int(nearest)

	if distance > s.cfg.MaxDistance {
		s.logger.Debug("object out of range",
			zap.Int("distance", distance), zap.Int("max_distance", s.cfg.MaxDistance))
		return nil, s.emit(ctx,
			VisualizerMessage{
				Frame:       output,
				Mask:        signals.NotObserved[*images.Mask](),
				ObjDistance: signals.Present(distance),
			},
			ShapeCompletionMessage{
				SegmentedPC: signals.NotObserved[pointcloud.Cloud](),
				ObjDistance: signals.Present(distance),
			}, nil)
	}

	cloud, err := s.projector.Project(depth)
	if err != nil {
		return nil, errors.Wrap(err, "depth projection failed")
	}
	centroid, err := cloud.Centroid()
	if err != nil {
		return nil, errors.Wrap(err, "centroid failed")
	}

	var tracking Message
	if s.follow.Load() {
		tracking = TrackingMessage{Point: centroid}
	}
	return nil, s.emit(ctx,
		VisualizerMessage{Frame: output, Mask: mask, ObjDistance: signals.Present(distance)},
		ShapeCompletionMessage{
			SegmentedPC: signals.Present(cloud),
			ObjDistance: signals.Present(distance),
			Point:       signals.Present(s.orientation.Apply(centroid)),
		}, tracking)
}

// emit writes the cycle outputs in channel order: visualizer, shape completion, tracking.
func (s *Stage) emit(ctx context.Context, vis, shape, tracking Message) error {
	if err := s.writer.Write(ctx, ChannelVisualizer, vis); err != nil {
		return errors.Wrapf(err, "write %s", ChannelVisualizer)
	}
	if err := s.writer.Write(ctx, ChannelShapeCompletion, shape); err != nil {
		return errors.Wrapf(err, "write %s", ChannelShapeCompletion)
	}
	if tracking == nil {
		return nil
	}
	if err := s.writer.Write(ctx, ChannelTracking, tracking); err != nil {
		return errors.Wrapf(err, "write %s", ChannelTracking)
	}
	return nil
}

// Run processes frames one at a time until frames is closed or ctx is done. The first failure
// stops the loop and is returned.
func (s *Stage) Run(ctx context.Context, frames <-chan Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if _, err := s.Process(ctx, frame); err != nil {
				return err
			}
			if s.timer.Count()%int64(s.timer.Window()) == 0 {
				s.logger.Debug("cycle latency",
					zap.Duration("mean", s.timer.Mean()),
					zap.Float64("fps", s.timer.FPS()))
			}
		}
	}
}
