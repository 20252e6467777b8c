package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Layout is the memory order of an image input tensor.
type Layout int

// Supported image layouts.
const (
	// LayoutNCHW is planar: [1, 3, H, W].
	LayoutNCHW Layout = iota
	// LayoutNHWC is interleaved: [1, H, W, 3].
	LayoutNHWC
)

// Normalization is applied per channel after scaling pixels to [0, 1]: (v - Mean) / Std.
// The zero value leaves values in [0, 1].
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// ImageNetNormalization is the usual mean/std of backbones trained on ImageNet.
var ImageNetNormalization = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// ImageInput describes an image tensor by layout and spatial size.
type ImageInput struct {
	Layout Layout
	Width  int
	Height int
}

// ImageInputFor derives the layout and size of a rank-4, batch-1, 3-channel image tensor.
//
// Arguments:
//   - info: The model input description.
//
// Returns:
//   - ImageInput: The image geometry.
//   - error: An error if info is not a single RGB image tensor.
func ImageInputFor(info TensorInfo) (ImageInput, error) {
	s := info.Shape
	if len(s) != 4 || s[0] != 1 {
		return ImageInput{}, errors.Errorf("input %q has shape %v, want a batch-1 image", info.Name, s)
	}
	if info.DType != DTypeFloat32 && info.DType != DTypeUint8 {
		return ImageInput{}, errors.Errorf("input %q has dtype %s, want float32 or uint8", info.Name, info.DType)
	}
	switch {
	case s[1] == 3:
		return ImageInput{Layout: LayoutNCHW, Width: int(s[3]), Height: int(s[2])}, nil
	case s[3] == 3:
		return ImageInput{Layout: LayoutNHWC, Width: int(s[2]), Height: int(s[1])}, nil
	default:
		return ImageInput{}, errors.Errorf("input %q has shape %v, want 3 channels", info.Name, s)
	}
}

// PrepareInput resizes img to the input geometry and writes it into dst.
//
// Float tensors receive values scaled to [0, 1] and then normalized; uint8 tensors receive raw
// 8-bit channels.
//
// Arguments:
//   - img: The image to prepare.
//   - geom: The target geometry.
//   - norm: The normalization for float tensors.
//   - dst: The destination tensor to populate, holding []float32 or []uint8.
//
// Returns:
//   - error: An error if the input preparation fails.
func PrepareInput(img image.Image, geom ImageInput, norm Normalization, dst Tensor) error {
	plane := geom.Width * geom.Height
	if dst.Len() < plane*3 {
		return errors.Errorf("destination tensor only holds %d values, needs %d "+
			"(make sure it's the right shape!)", dst.Len(), plane*3)
	}

	b := img.Bounds()
	if b.Dx() != geom.Width || b.Dy() != geom.Height {
		img = resize.Resize(uint(geom.Width), uint(geom.Height), img, resize.Bilinear)
		b = img.Bounds()
	}

	switch data := dst.Data.(type) {
	case []float32:
		var scale, offset [3]float32
		for c := 0; c < 3; c++ {
			std := norm.Std[c]
			if std == 0 {
				std = 1
			}
			scale[c] = 1 / (255 * std)
			offset[c] = norm.Mean[c] / std
		}
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				px := [3]float32{float32(r >> 8), float32(g >> 8), float32(bl >> 8)}
				for c := 0; c < 3; c++ {
					v := px[c]*scale[c] - offset[c]
					if geom.Layout == LayoutNCHW {
						data[c*plane+i] = v
					} else {
						data[i*3+c] = v
					}
				}
				i++
			}
		}
	case []uint8:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				px := [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)}
				for c := 0; c < 3; c++ {
					if geom.Layout == LayoutNCHW {
						data[c*plane+i] = px[c]
					} else {
						data[i*3+c] = px[c]
					}
				}
				i++
			}
		}
	default:
		return errors.Errorf("unsupported image tensor dtype %s", dst.DType())
	}
	return nil
}
