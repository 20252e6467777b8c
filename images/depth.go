// Package images - Depth maps, label masks and packed color frames.
package images

import (
	"github.com/pkg/errors"
)

// DepthMap is a row-major grid of depth samples. Zero means "no measurement".
type DepthMap struct {
	// The width of the depth frame in pixels.
	Width int `json:"width" cbor:"width"`
	// The height of the depth frame in pixels.
	Height int `json:"height" cbor:"height"`
	// The depth samples, Width*Height long, in sensor units.
	Data []uint16 `json:"data" cbor:"data"`
}

// NewDepthMap allocates a zeroed depth map.
func NewDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		Width:  width,
		Height: height,
		Data:   make([]uint16, width*height),
	}
}

// Validate checks that the sample count matches the declared dimensions.
func (d *DepthMap) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return errors.Errorf("invalid depth map size %dx%d", d.Width, d.Height)
	}
	if len(d.Data) != d.Width*d.Height {
		return errors.Errorf("depth map %dx%d holds %d samples, want %d",
			d.Width, d.Height, len(d.Data), d.Width*d.Height)
	}
	return nil
}

// Clone returns a deep copy.
func (d *DepthMap) Clone() *DepthMap {
	if d == nil {
		return nil
	}
	data := make([]uint16, len(d.Data))
	copy(data, d.Data)
	return &DepthMap{Width: d.Width, Height: d.Height, Data: data}
}

// At returns the sample at column x, row y.
func (d *DepthMap) At(x, y int) uint16 {
	return d.Data[y*d.Width+x]
}

// Set stores the sample at column x, row y.
func (d *DepthMap) Set(x, y int, v uint16) {
	d.Data[y*d.Width+x] = v
}

// CountNonZero returns the number of samples carrying a measurement.
func (d *DepthMap) CountNonZero() int {
	n := 0
	for _, v := range d.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// MinNonZero returns the smallest measured depth. ok is false when every sample is zero.
func (d *DepthMap) MinNonZero() (min uint16, ok bool) {
	for _, v := range d.Data {
		if v == 0 {
			continue
		}
		if !ok || v < min {
			min, ok = v, true
		}
	}
	return min, ok
}

// Filter zeroes every sample whose mask label differs from label. The mask must have the same
// dimensions as the depth map. The depth map is modified in place.
//
// Arguments:
//   - mask: The per-pixel label mask, already at depth resolution.
//   - label: The label to keep.
//
// Returns:
//   - error: An error if the mask and depth dimensions differ.
func (d *DepthMap) Filter(mask *Mask, label int32) error {
	if mask.Width != d.Width || mask.Height != d.Height {
		return errors.Errorf("mask %dx%d does not match depth %dx%d",
			mask.Width, mask.Height, d.Width, d.Height)
	}
	for i, l := range mask.Labels {
		if l != label {
			d.Data[i] = 0
		}
	}
	return nil
}
