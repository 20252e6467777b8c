package images

import (
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// RFC 8746 typed array tags.
const (
	tagUint16LE = 69
	tagUint32LE = 70
	tagInt32LE  = 78
)

type gridWire struct {
	Width  int             `cbor:"width"`
	Height int             `cbor:"height"`
	Data   cbor.RawMessage `cbor:"data,omitempty"`
	Labels cbor.RawMessage `cbor:"labels,omitempty"`
}

// MarshalCBOR encodes the samples as a little-endian uint16 typed array.
func (d *DepthMap) MarshalCBOR() ([]byte, error) {
	buf := make([]byte, 2*len(d.Data))
	for i, v := range d.Data {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return cbor.Marshal(struct {
		Width  int      `cbor:"width"`
		Height int      `cbor:"height"`
		Data   cbor.Tag `cbor:"data"`
	}{d.Width, d.Height, cbor.Tag{Number: tagUint16LE, Content: buf}})
}

// UnmarshalCBOR accepts the samples as a uint16 or uint32 typed array, a raw little-endian uint16
// byte string or a plain integer array. 32-bit samples must fit in 16 bits.
func (d *DepthMap) UnmarshalCBOR(data []byte) error {
	var w gridWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	var raw any
	if err := cbor.Unmarshal(w.Data, &raw); err != nil {
		return errors.Wrap(err, "depth data")
	}

	var samples []uint16
	switch v := raw.(type) {
	case cbor.Tag:
		b, ok := v.Content.([]byte)
		if !ok {
			return errors.Errorf("unsupported depth typed array content %T", v.Content)
		}
		switch v.Number {
		case tagUint16LE:
			samples = bytesToUint16(b)
		case tagUint32LE:
			var err error
			if samples, err = narrowUint32(b); err != nil {
				return err
			}
		default:
			return errors.Errorf("unsupported depth typed array tag %d", v.Number)
		}
	case []byte:
		samples = bytesToUint16(v)
	case []any:
		samples = make([]uint16, len(v))
		for i, item := range v {
			n, ok := item.(uint64)
			if !ok || n > 0xffff {
				return errors.Errorf("depth sample %d is not a uint16: %v", i, item)
			}
			samples[i] = uint16(n)
		}
	default:
		return errors.Errorf("unsupported depth data %T", raw)
	}

	*d = DepthMap{Width: w.Width, Height: w.Height, Data: samples}
	return d.Validate()
}

// MarshalCBOR encodes the labels as a little-endian int32 typed array.
func (m *Mask) MarshalCBOR() ([]byte, error) {
	buf := make([]byte, 4*len(m.Labels))
	for i, v := range m.Labels {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return cbor.Marshal(struct {
		Width  int      `cbor:"width"`
		Height int      `cbor:"height"`
		Labels cbor.Tag `cbor:"labels"`
	}{m.Width, m.Height, cbor.Tag{Number: tagInt32LE, Content: buf}})
}

// UnmarshalCBOR accepts the labels as an int32 typed array or a plain integer array.
func (m *Mask) UnmarshalCBOR(data []byte) error {
	var w gridWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	var labels []int32
	var tag cbor.Tag
	if err := cbor.Unmarshal(w.Labels, &tag); err == nil {
		b, ok := tag.Content.([]byte)
		if tag.Number != tagInt32LE || !ok || len(b)%4 != 0 {
			return errors.Errorf("unsupported mask typed array tag %d", tag.Number)
		}
		labels = make([]int32, len(b)/4)
		for i := range labels {
			labels[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
		}
	} else if err := cbor.Unmarshal(w.Labels, &labels); err != nil {
		return errors.Wrap(err, "mask labels")
	}
	if w.Width <= 0 || w.Height <= 0 || len(labels) != w.Width*w.Height {
		return errors.Errorf("mask %dx%d holds %d labels", w.Width, w.Height, len(labels))
	}
	*m = Mask{Width: w.Width, Height: w.Height, Labels: labels}
	return nil
}

func narrowUint32(data []byte) ([]uint16, error) {
	if len(data)%4 != 0 {
		return nil, errors.Errorf("uint32 depth array has %d bytes", len(data))
	}
	out := make([]uint16, len(data)/4)
	for i := range out {
		v := binary.LittleEndian.Uint32(data[i*4:])
		if v > 0xffff {
			return nil, errors.Errorf("depth sample %d out of range: %d", i, v)
		}
		out[i] = uint16(v)
	}
	return out, nil
}

func bytesToUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return out
}
