package images

import (
	"image"
	"sort"
	"unsafe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Mask is a row-major grid of integer class labels produced by a segmentation model.
type Mask struct {
	// The width of the mask in pixels.
	Width int `json:"width" cbor:"width"`
	// The height of the mask in pixels.
	Height int `json:"height" cbor:"height"`
	// The class label of each pixel, Width*Height long.
	Labels []int32 `json:"labels" cbor:"labels"`
}

// NewMask allocates a mask where every pixel carries label 0.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Labels: make([]int32, width*height),
	}
}

// At returns the label at column x, row y.
func (m *Mask) At(x, y int) int32 {
	return m.Labels[y*m.Width+x]
}

// Set stores the label at column x, row y.
func (m *Mask) Set(x, y int, label int32) {
	m.Labels[y*m.Width+x] = label
}

// LabelSet returns the distinct labels in ascending order.
func (m *Mask) LabelSet() []int32 {
	seen := make(map[int32]struct{})
	for _, l := range m.Labels {
		seen[l] = struct{}{}
	}
	labels := make([]int32, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// ResizeNearest resamples the mask to width x height with nearest-neighbor interpolation.
// Output labels are always a subset of the input labels; no blending happens.
//
// Arguments:
//   - width: The target width.
//   - height: The target height.
//
// Returns:
//   - *Mask: A new mask at the target size.
//   - error: An error if the mask is malformed or OpenCV fails to resample it.
func (m *Mask) ResizeNearest(width, height int) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid target size %dx%d", width, height)
	}
	if len(m.Labels) != m.Width*m.Height || len(m.Labels) == 0 {
		return nil, errors.Errorf("mask %dx%d holds %d labels", m.Width, m.Height, len(m.Labels))
	}
	if width == m.Width && height == m.Height {
		out := NewMask(width, height)
		copy(out.Labels, m.Labels)
		return out, nil
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&m.Labels[0])), len(m.Labels)*4)
	src, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV32SC1, raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to wrap mask")
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationNearestNeighbor)
	if dst.Empty() || dst.Cols() != width || dst.Rows() != height {
		return nil, errors.Errorf("failed to resize mask to %dx%d", width, height)
	}

	labels, err := dst.DataPtrInt32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read resized mask")
	}
	out := NewMask(width, height)
	copy(out.Labels, labels)
	return out, nil
}
