package transport

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-perception/perception"
)

type captureWriter struct {
	name string
	log  *[]string
	err  error
}

func (c captureWriter) Write(_ context.Context, ch perception.Channel, _ perception.Message) error {
	*c.log = append(*c.log, c.name+":"+string(ch))
	return c.err
}

func TestRouterDispatch(t *testing.T) {
	var log []string
	r := NewRouter().
		Handle(perception.ChannelVisualizer, captureWriter{name: "pub", log: &log}).
		Handle(perception.ChannelTracking, captureWriter{name: "pub", log: &log}, captureWriter{name: "hub", log: &log})

	msg := perception.TrackingMessage{Point: r3.Vector{X: 1}}
	require.NoError(t, r.Write(context.Background(), perception.ChannelTracking, msg))
	require.NoError(t, r.Write(context.Background(), perception.ChannelVisualizer, msg))
	assert.Equal(t, []string{"pub:tracking/3d-viz", "hub:tracking/3d-viz", "pub:visualizer"}, log)
}

func TestRouterUnknownChannel(t *testing.T) {
	err := NewRouter().Write(context.Background(), perception.ChannelShapeCompletion, perception.TrackingMessage{})
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.Contains(t, err.Error(), "shape_completion")
}

func TestRouterStopsAtFirstFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	r := NewRouter().Handle(perception.ChannelTracking,
		captureWriter{name: "a", log: &log, err: boom},
		captureWriter{name: "b", log: &log})

	assert.ErrorIs(t, r.Write(context.Background(), perception.ChannelTracking, perception.TrackingMessage{}), boom)
	assert.Equal(t, []string{"a:tracking/3d-viz"}, log)
}
