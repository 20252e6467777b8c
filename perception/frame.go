// Package perception - The per-frame segmentation stage of the grasping pipeline.
//
// Each cycle takes one RGB-D frame, segments the target object, isolates its depth, and fans the
// result out to the visualizer, the shape completion stage and, when following is enabled, the
// 3D tracking display.
package perception

import (
	"github.com/nvr-ai/go-perception/images"
	"github.com/nvr-ai/go-perception/signals"
)

// Frame is one camera record. Fields other than rgb and depth are carried through untouched.
type Frame struct {
	RGB   signals.Value[*images.RGB]
	Depth signals.Value[*images.DepthMap]
	// Extra holds any other fields of the incoming record, forwarded to the visualizer.
	Extra map[string]any
}

// Clone returns a deep copy of the frame payloads. Extra values are copied shallowly.
func (f Frame) Clone() Frame {
	out := Frame{RGB: f.RGB, Depth: f.Depth}
	if rgb, ok := f.RGB.Get(); ok {
		out.RGB = signals.Present(rgb.Clone())
	}
	if depth, ok := f.Depth.Get(); ok {
		out.Depth = signals.Present(depth.Clone())
	}
	if f.Extra != nil {
		out.Extra = make(map[string]any, len(f.Extra))
		for k, v := range f.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Fields returns the frame as a wire record.
func (f Frame) Fields() map[string]any {
	m := make(map[string]any, len(f.Extra)+2)
	for k, v := range f.Extra {
		m[k] = v
	}
	m[FieldRGB] = f.RGB
	m[FieldDepth] = f.Depth
	return m
}
