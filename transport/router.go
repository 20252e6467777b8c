package transport

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-perception/perception"
)

// ErrUnknownChannel is returned when a message targets a channel with no registered writer.
var ErrUnknownChannel = errors.New("unknown channel")

// Router dispatches each channel to its writers, in registration order. Routes are registered
// before the first Write and not changed afterwards.
type Router struct {
	routes map[perception.Channel][]perception.Writer
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[perception.Channel][]perception.Writer)}
}

// Handle adds writers for ch.
func (r *Router) Handle(ch perception.Channel, writers ...perception.Writer) *Router {
	r.routes[ch] = append(r.routes[ch], writers...)
	return r
}

// Write implements perception.Writer. Delivery stops at the first failing writer.
func (r *Router) Write(ctx context.Context, ch perception.Channel, msg perception.Message) error {
	writers, ok := r.routes[ch]
	if !ok || len(writers) == 0 {
		return errors.Wrapf(ErrUnknownChannel, "%q", ch)
	}
	for _, w := range writers {
		if err := w.Write(ctx, ch, msg); err != nil {
			return err
		}
	}
	return nil
}
