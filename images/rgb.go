package images

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// RGB is a packed 24-bit color frame as delivered by the camera. It implements image.Image.
type RGB struct {
	// The width of the frame in pixels.
	Width int `json:"width" cbor:"width"`
	// The height of the frame in pixels.
	Height int `json:"height" cbor:"height"`
	// The pixel data, 3 bytes per pixel in R, G, B order.
	Data []byte `json:"data" cbor:"data"`
}

// NewRGB wraps packed RGB24 data without copying it.
func NewRGB(width, height int, data []byte) (*RGB, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(data) != width*height*3 {
		return nil, errors.Errorf("frame %dx%d holds %d bytes, want %d",
			width, height, len(data), width*height*3)
	}
	return &RGB{Width: width, Height: height, Data: data}, nil
}

// Clone returns a deep copy.
func (r *RGB) Clone() *RGB {
	if r == nil {
		return nil
	}
	data := make([]byte, len(r.Data))
	copy(data, r.Data)
	return &RGB{Width: r.Width, Height: r.Height, Data: data}
}

// ColorModel implements image.Image.
func (r *RGB) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (r *RGB) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// At implements image.Image.
func (r *RGB) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return color.RGBA{}
	}
	i := (y*r.Width + x) * 3
	return color.RGBA{R: r.Data[i], G: r.Data[i+1], B: r.Data[i+2], A: 0xff}
}
