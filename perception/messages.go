package perception

import (
	"context"

	"github.com/golang/geo/r3"

	"github.com/nvr-ai/go-perception/images"
	"github.com/nvr-ai/go-perception/pointcloud"
	"github.com/nvr-ai/go-perception/signals"
)

// Channel names a downstream consumer.
type Channel string

// Output channels.
const (
	ChannelVisualizer      Channel = "visualizer"
	ChannelShapeCompletion Channel = "shape_completion"
	ChannelTracking        Channel = "tracking/3d-viz"
)

// Wire field names.
const (
	FieldRGB         = "rgb"
	FieldDepth       = "depth"
	FieldMask        = "mask"
	FieldObjDistance = "obj_distance"
	FieldSegmentedPC = "segmented_pc"
	FieldPoint       = "point"
)

// Message is a record written to a channel.
type Message interface {
	// Fields returns the record keyed by wire field name.
	Fields() map[string]any
}

// Writer delivers messages to downstream consumers.
type Writer interface {
	Write(ctx context.Context, ch Channel, msg Message) error
}

// VisualizerMessage is the input frame annotated with the segmentation result.
type VisualizerMessage struct {
	Frame Frame
	Mask  signals.Value[*images.Mask]
	// ObjDistance is left unset when the frame was too sparse to measure.
	ObjDistance signals.Value[int]
}

// Fields implements Message.
func (m VisualizerMessage) Fields() map[string]any {
	f := m.Frame.Fields()
	f[FieldMask] = m.Mask
	if m.ObjDistance.IsSet() {
		f[FieldObjDistance] = m.ObjDistance
	}
	return f
}

// ShapeCompletionMessage carries the segmented object to shape completion.
type ShapeCompletionMessage struct {
	SegmentedPC signals.Value[pointcloud.Cloud]
	ObjDistance signals.Value[int]
	// Point is the orientation-corrected centroid; only set when a cloud is present.
	Point signals.Value[r3.Vector]
}

// Fields implements Message.
func (m ShapeCompletionMessage) Fields() map[string]any {
	f := map[string]any{
		FieldSegmentedPC: m.SegmentedPC,
		FieldObjDistance: m.ObjDistance,
	}
	if p, ok := m.Point.Get(); ok {
		f[FieldPoint] = pointcloud.ToArray(p)
	}
	return f
}

// TrackingMessage carries the camera-frame centroid to the 3D display.
type TrackingMessage struct {
	Point r3.Vector
}

// Fields implements Message.
func (m TrackingMessage) Fields() map[string]any {
	return map[string]any{FieldPoint: pointcloud.ToArray(m.Point)}
}
