// Package transport - Wire encoding and the sockets that move frames and results between stages.
package transport

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-perception/images"
	"github.com/nvr-ai/go-perception/perception"
	"github.com/nvr-ai/go-perception/signals"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeMessage serializes a stage output record as a deterministic CBOR map.
func EncodeMessage(msg perception.Message) ([]byte, error) {
	b, err := encMode.Marshal(msg.Fields())
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}
	return b, nil
}

// EncodeFrame serializes a camera record.
func EncodeFrame(f perception.Frame) ([]byte, error) {
	b, err := encMode.Marshal(f.Fields())
	if err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	return b, nil
}

// DecodeFrame parses a camera record. A missing or null rgb or depth field decodes as absent
// with the MISSING_VALUE reason; the reason tokens decode as absent with that reason. Other
// fields are kept in Extra.
//
// Arguments:
//   - data: The CBOR map.
//
// Returns:
//   - perception.Frame: The decoded frame.
//   - error: An error if the payload is not a map or a payload field is malformed.
func DecodeFrame(data []byte) (perception.Frame, error) {
	var fields map[string]cbor.RawMessage
	if err := decMode.Unmarshal(data, &fields); err != nil {
		return perception.Frame{}, errors.Wrap(err, "decode frame")
	}

	frame := perception.Frame{
		RGB:   signals.Absent[*images.RGB](signals.ReasonMissing),
		Depth: signals.Absent[*images.DepthMap](signals.ReasonMissing),
	}
	for key, raw := range fields {
		switch key {
		case perception.FieldRGB:
			if err := decMode.Unmarshal(raw, &frame.RGB); err != nil {
				return perception.Frame{}, errors.Wrap(err, "decode rgb")
			}
		case perception.FieldDepth:
			if err := decMode.Unmarshal(raw, &frame.Depth); err != nil {
				return perception.Frame{}, errors.Wrap(err, "decode depth")
			}
		default:
			var v any
			if err := decMode.Unmarshal(raw, &v); err != nil {
				return perception.Frame{}, errors.Wrapf(err, "decode %q", key)
			}
			if frame.Extra == nil {
				frame.Extra = make(map[string]any)
			}
			frame.Extra[key] = v
		}
	}

	if rgb, ok := frame.RGB.Get(); ok {
		if rgb == nil {
			frame.RGB = signals.Absent[*images.RGB](signals.ReasonMissing)
		} else if _, err := images.NewRGB(rgb.Width, rgb.Height, rgb.Data); err != nil {
			return perception.Frame{}, errors.Wrap(err, "decode rgb")
		}
	}
	if depth, ok := frame.Depth.Get(); ok && depth == nil {
		frame.Depth = signals.Absent[*images.DepthMap](signals.ReasonMissing)
	}
	return frame, nil
}
