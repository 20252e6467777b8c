package transport

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-perception/images"
	"github.com/nvr-ai/go-perception/perception"
	"github.com/nvr-ai/go-perception/pointcloud"
	"github.com/nvr-ai/go-perception/signals"
)

func sampleFrame(t *testing.T) perception.Frame {
	t.Helper()
	rgb, err := images.NewRGB(2, 1, []byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	depth := images.NewDepthMap(2, 1)
	depth.Data[0] = 640
	return perception.Frame{
		RGB:   signals.Present(rgb),
		Depth: signals.Present(depth),
		Extra: map[string]any{"seq": uint64(7), "camera": "wrist"},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	in := sampleFrame(t)
	b, err := EncodeFrame(in)
	require.NoError(t, err)

	out, err := DecodeFrame(b)
	require.NoError(t, err)

	assert.Equal(t, in.RGB.MustGet(), out.RGB.MustGet())
	assert.Equal(t, in.Depth.MustGet(), out.Depth.MustGet())
	if diff := cmp.Diff(in.Extra, out.Extra); diff != "" {
		t.Errorf("extra fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFrameAbsence(t *testing.T) {
	b, err := cbor.Marshal(map[string]any{
		"rgb":   "NOT_OBSERVED",
		"label": "cup",
	})
	require.NoError(t, err)

	f, err := DecodeFrame(b)
	require.NoError(t, err)
	assert.Equal(t, signals.ReasonNotObserved, f.RGB.Reason())
	assert.Equal(t, signals.ReasonMissing, f.Depth.Reason())
	assert.Equal(t, "cup", f.Extra["label"])

	b, err = cbor.Marshal(map[string]any{"rgb": nil, "depth": nil})
	require.NoError(t, err)
	f, err = DecodeFrame(b)
	require.NoError(t, err)
	assert.Equal(t, signals.ReasonMissing, f.RGB.Reason())
	assert.Equal(t, signals.ReasonMissing, f.Depth.Reason())
}

func TestDecodeFrameRejectsMalformedPayloads(t *testing.T) {
	_, err := DecodeFrame([]byte{0xff})
	assert.Error(t, err)

	b, err := cbor.Marshal(map[string]any{
		"rgb": map[string]any{"width": 2, "height": 2, "data": []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	_, err = DecodeFrame(b)
	assert.Error(t, err)
}

func TestEncodeShapeCompletion(t *testing.T) {
	msg := perception.ShapeCompletionMessage{
		SegmentedPC: signals.Present(pointcloud.Cloud{{X: 1, Y: 2, Z: 3}}),
		ObjDistance: signals.Present(420),
		Point:       signals.Present(r3.Vector{X: 1, Y: -2, Z: -3}),
	}
	b, err := EncodeMessage(msg)
	require.NoError(t, err)

	var got struct {
		SegmentedPC [][3]float64 `cbor:"segmented_pc"`
		ObjDistance int          `cbor:"obj_distance"`
		Point       [3]float64   `cbor:"point"`
	}
	require.NoError(t, cbor.Unmarshal(b, &got))
	assert.Equal(t, [][3]float64{{1, 2, 3}}, got.SegmentedPC)
	assert.Equal(t, 420, got.ObjDistance)
	assert.Equal(t, [3]float64{1, -2, -3}, got.Point)
}

func TestEncodeNotObserved(t *testing.T) {
	msg := perception.ShapeCompletionMessage{
		SegmentedPC: signals.NotObserved[pointcloud.Cloud](),
		ObjDistance: signals.NotObserved[int](),
	}
	b, err := EncodeMessage(msg)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, cbor.Unmarshal(b, &got))
	assert.Equal(t, map[string]any{
		"segmented_pc": "NOT_OBSERVED",
		"obj_distance": "NOT_OBSERVED",
	}, got)
}

func TestEncodeIsDeterministic(t *testing.T) {
	msg := perception.VisualizerMessage{
		Frame:       sampleFrame(t),
		Mask:        signals.NotObserved[*images.Mask](),
		ObjDistance: signals.Present(701),
	}
	first, err := EncodeMessage(msg)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := EncodeMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
