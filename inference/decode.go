package inference

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-perception/images"
)

// DefaultMaskThreshold is the probability above which a single-channel logit is foreground.
const DefaultMaskThreshold float32 = 0.5

// DecodeMask turns a segmentation output into a label mask at the model's output resolution.
//
// Supported outputs, with H and W the two trailing dimensions:
//   - integer tensors with one plane: labels are taken as is;
//   - float tensors with C > 1 planes: per-pixel argmax over C;
//   - float tensors with one plane: sigmoid(logit) > threshold gives label 1, else 0.
//
// Arguments:
//   - t: The model output.
//   - threshold: The foreground probability for single-plane float outputs.
//
// Returns:
//   - *images.Mask: The decoded mask.
//   - error: An error if the output is not a supported mask layout.
func DecodeMask(t Tensor, threshold float32) (*images.Mask, error) {
	s := t.Shape
	if len(s) < 2 {
		return nil, errors.Errorf("output %q has shape %v, want at least 2 dimensions", t.Name, s)
	}
	h, w := int(s[len(s)-2]), int(s[len(s)-1])
	if h <= 0 || w <= 0 || t.Len() == 0 || t.Len()%(h*w) != 0 {
		return nil, errors.Errorf("output %q has shape %v but %d values", t.Name, s, t.Len())
	}
	planes := t.Len() / (h * w)
	mask := images.NewMask(w, h)

	switch data := t.Data.(type) {
	case []float32:
		return mask, decodeScores(mask, data, planes, threshold)
	case []float64:
		f := make([]float32, len(data))
		for i, v := range data {
			f[i] = float32(v)
		}
		return mask, decodeScores(mask, f, planes, threshold)
	}

	if planes != 1 {
		return nil, errors.Errorf("integer output %q has %d planes, want 1", t.Name, planes)
	}
	switch data := t.Data.(type) {
	case []int64:
		copyLabels(mask.Labels, data)
	case []int32:
		copy(mask.Labels, data)
	case []uint8:
		copyLabels(mask.Labels, data)
	case []int8:
		copyLabels(mask.Labels, data)
	case []uint16:
		copyLabels(mask.Labels, data)
	case []int16:
		copyLabels(mask.Labels, data)
	default:
		return nil, errors.Errorf("output %q has unsupported dtype %s", t.Name, t.DType())
	}
	return mask, nil
}

func decodeScores(mask *images.Mask, scores []float32, planes int, threshold float32) error {
	if planes == 1 {
		for i, logit := range scores {
			if sigmoid(logit) > threshold {
				mask.Labels[i] = 1
			}
		}
		return nil
	}

	pixels := len(mask.Labels)
	dense := tensor.New(tensor.WithShape(planes, pixels), tensor.WithBacking(scores))
	best, err := dense.Argmax(0)
	if err != nil {
		return errors.Wrap(err, "argmax over class scores")
	}
	idx, ok := best.Data().([]int)
	if !ok || len(idx) != pixels {
		return errors.Errorf("argmax returned %T", best.Data())
	}
	for i, c := range idx {
		mask.Labels[i] = int32(c)
	}
	return nil
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func copyLabels[T int64 | uint8 | int8 | uint16 | int16](dst []int32, src []T) {
	for i, v := range src {
		dst[i] = int32(v)
	}
}
