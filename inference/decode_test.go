package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMaskIntegerLabels(t *testing.T) {
	out := NewTensor("mask", Shape{1, 2, 3}, []int64{0, 1, 1, 2, 0, 1})

	mask, err := DecodeMask(out, DefaultMaskThreshold)
	require.NoError(t, err)
	assert.Equal(t, 3, mask.Width)
	assert.Equal(t, 2, mask.Height)
	assert.Equal(t, []int32{0, 1, 1, 2, 0, 1}, mask.Labels)
}

func TestDecodeMaskArgmax(t *testing.T) {
	// Three classes over a 1x2 image, planar: class scores for pixel 0 are (0.1, 0.7, 0.2),
	// for pixel 1 (0.9, 0.05, 0.05).
	out := NewTensor("logits", Shape{1, 3, 1, 2}, []float32{
		0.1, 0.9,
		0.7, 0.05,
		0.2, 0.05,
	})

	mask, err := DecodeMask(out, DefaultMaskThreshold)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0}, mask.Labels)
}

func TestDecodeMaskSigmoid(t *testing.T) {
	out := NewTensor("logit", Shape{1, 1, 2, 2}, []float32{-3, 3, 0.2, -0.2})

	mask, err := DecodeMask(out, DefaultMaskThreshold)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 1, 0}, mask.Labels)

	strict, err := DecodeMask(out, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 0, 0}, strict.Labels)
}

func TestDecodeMaskFloat64(t *testing.T) {
	out := NewTensor("logits", Shape{2, 1, 1}, []float64{0.2, 0.8})

	mask, err := DecodeMask(out, DefaultMaskThreshold)
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, mask.Labels)
}

func TestDecodeMaskErrors(t *testing.T) {
	_, err := DecodeMask(NewTensor("flat", Shape{4}, []float32{1, 2, 3, 4}), DefaultMaskThreshold)
	assert.Error(t, err)

	_, err = DecodeMask(NewTensor("multi", Shape{2, 1, 2}, []int32{0, 1, 1, 0}), DefaultMaskThreshold)
	assert.Error(t, err, "integer outputs must have a single plane")

	_, err = DecodeMask(NewTensor("short", Shape{2, 2}, []int32{0, 1, 1}), DefaultMaskThreshold)
	assert.Error(t, err)
}
