package inference

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-perception/images"
	"github.com/nvr-ai/go-perception/signals"
)

// ModelSegmenter produces label masks from RGB frames with a loaded segmentation model.
//
// The model must take one batch-1 RGB image tensor and produce the mask as its first output.
// Calls are serialized because the underlying Runner has a single set of buffers.
type ModelSegmenter struct {
	mu        sync.Mutex
	runner    *Runner
	geom      ImageInput
	norm      Normalization
	threshold float32
	input     Tensor
}

// SegmenterOption configures a ModelSegmenter.
type SegmenterOption func(*ModelSegmenter)

// WithNormalization sets the per-channel normalization of float inputs.
func WithNormalization(n Normalization) SegmenterOption {
	return func(s *ModelSegmenter) {
		s.norm = n
	}
}

// WithMaskThreshold sets the foreground probability for single-channel outputs.
func WithMaskThreshold(th float32) SegmenterOption {
	return func(s *ModelSegmenter) {
		s.threshold = th
	}
}

// NewModelSegmenter checks that runner holds an image segmentation model and preallocates its
// staging input.
//
// Arguments:
//   - runner: The loaded model.
//   - opts: Segmenter options.
//
// Returns:
//   - *ModelSegmenter: The segmenter.
//   - error: An error if the model inputs do not describe one RGB image.
func NewModelSegmenter(runner *Runner, opts ...SegmenterOption) (*ModelSegmenter, error) {
	inputs := runner.Inputs()
	if len(inputs) != 1 {
		return nil, errors.Errorf("segmentation model has %d inputs, want 1", len(inputs))
	}
	geom, err := ImageInputFor(inputs[0])
	if err != nil {
		return nil, err
	}
	data, err := makeData(inputs[0].DType, int(inputs[0].Shape.Elements()))
	if err != nil {
		return nil, err
	}

	s := &ModelSegmenter{
		runner:    runner,
		geom:      geom,
		threshold: DefaultMaskThreshold,
		input:     Tensor{Name: inputs[0].Name, Shape: inputs[0].Shape, Data: data},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Segment runs the model on img and returns the mask at model output resolution. The device call
// cannot be interrupted; ctx is only checked before it starts.
func (s *ModelSegmenter) Segment(ctx context.Context, img image.Image) (signals.Value[*images.Mask], error) {
	if err := ctx.Err(); err != nil {
		return signals.Value[*images.Mask]{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := PrepareInput(img, s.geom, s.norm, s.input); err != nil {
		return signals.Value[*images.Mask]{}, errors.Wrap(err, "prepare segmentation input")
	}

	var mask *images.Mask
	err := s.runner.Invoke([]Tensor{s.input}, func(outputs []Tensor) error {
		m, err := DecodeMask(outputs[0], s.threshold)
		mask = m
		return err
	})
	if err != nil {
		return signals.Value[*images.Mask]{}, errors.Wrap(err, "segmentation inference")
	}
	return signals.Present(mask), nil
}
