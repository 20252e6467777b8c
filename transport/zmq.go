package transport

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-perception/perception"
)

// DefaultRecvTimeout bounds how long the source blocks before rechecking its context.
const DefaultRecvTimeout = 250 * time.Millisecond

// SocketConfig describes one ZeroMQ endpoint.
type SocketConfig struct {
	// Endpoint is the ZeroMQ address, for example tcp://127.0.0.1:5555.
	Endpoint string `koanf:"endpoint"`
	// Bind binds the endpoint instead of connecting to it.
	Bind bool `koanf:"bind"`
}

func (c SocketConfig) open(t zmq4.Type) (*zmq4.Socket, error) {
	if c.Endpoint == "" {
		return nil, errors.New("empty endpoint")
	}
	socket, err := zmq4.NewSocket(t)
	if err != nil {
		return nil, errors.Wrap(err, "create socket")
	}
	if c.Bind {
		err = socket.Bind(c.Endpoint)
	} else {
		err = socket.Connect(c.Endpoint)
	}
	if err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "attach %s", c.Endpoint)
	}
	return socket, nil
}

// ZMQSource pulls CBOR camera records from a PUSH peer.
type ZMQSource struct {
	socket  *zmq4.Socket
	logger  *zap.Logger
	backoff time.Duration
}

// NewZMQSource opens a PULL socket.
//
// Arguments:
//   - cfg: The endpoint.
//   - recvTimeout: How often a blocked receive rechecks cancellation. Zero uses DefaultRecvTimeout.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *ZMQSource: The source. Stream takes ownership of the socket.
//   - error: An error if the socket cannot be opened.
func NewZMQSource(cfg SocketConfig, recvTimeout time.Duration, logger *zap.Logger) (*ZMQSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recvTimeout <= 0 {
		recvTimeout = DefaultRecvTimeout
	}
	socket, err := cfg.open(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.SetRcvtimeo(recvTimeout); err != nil {
		_ = socket.Close()
		return nil, errors.Wrap(err, "set receive timeout")
	}
	return &ZMQSource{
		socket:  socket,
		logger:  logger.With(zap.String("endpoint", cfg.Endpoint)),
		backoff: recvTimeout,
	}, nil
}

type recvOutcome int

const (
	// recvRetry: nothing arrived before the timeout.
	recvRetry recvOutcome = iota
	// recvBackoff: a receive failure worth logging; wait before the next attempt.
	recvBackoff
	// recvStop: the ZeroMQ context is gone and the socket will never deliver again.
	recvStop
)

func classifyRecvErr(err error) recvOutcome {
	switch zmq4.AsErrno(err) {
	case zmq4.Errno(syscall.EAGAIN), zmq4.Errno(syscall.EINTR):
		return recvRetry
	case zmq4.ETERM:
		return recvStop
	default:
		return recvBackoff
	}
}

// Stream decodes incoming records until ctx is done or the ZeroMQ context terminates, then closes
// the socket and the channel. Records that fail to decode are logged and dropped; other receive
// failures are logged and retried after the receive timeout.
func (s *ZMQSource) Stream(ctx context.Context, buffer int) <-chan perception.Frame {
	out := make(chan perception.Frame, buffer)
	go func() {
		defer close(out)
		defer s.socket.Close()

		for {
			if ctx.Err() != nil {
				return
			}
			msg, err := s.socket.RecvBytes(0)
			if err != nil {
				switch classifyRecvErr(err) {
				case recvStop:
					s.logger.Info("zeromq context terminated, source stopped")
					return
				case recvBackoff:
					s.logger.Warn("receive failed", zap.Error(err), zap.Duration("backoff", s.backoff))
					select {
					case <-ctx.Done():
						return
					case <-time.After(s.backoff):
					}
				}
				continue
			}
			frame, err := DecodeFrame(msg)
			if err != nil {
				s.logger.Warn("dropping undecodable frame", zap.Error(err), zap.Int("bytes", len(msg)))
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()
	return out
}

// ZMQPublisher publishes stage outputs on a PUB socket as two-part messages: the channel name
// followed by the CBOR record. Subscribers filter by channel prefix.
type ZMQPublisher struct {
	mu     sync.Mutex
	socket *zmq4.Socket
	logger *zap.Logger
}

// NewZMQPublisher opens a PUB socket.
func NewZMQPublisher(cfg SocketConfig, logger *zap.Logger) (*ZMQPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	socket, err := cfg.open(zmq4.PUB)
	if err != nil {
		return nil, err
	}
	return &ZMQPublisher{socket: socket, logger: logger.With(zap.String("endpoint", cfg.Endpoint))}, nil
}

// Write implements perception.Writer.
func (p *ZMQPublisher) Write(ctx context.Context, ch perception.Channel, msg perception.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return errors.New("publisher is closed")
	}
	if _, err := p.socket.SendMessage(string(ch), payload); err != nil {
		return errors.Wrapf(err, "publish %s", ch)
	}
	p.logger.Debug("published", zap.String("channel", string(ch)), zap.Int("bytes", len(payload)))
	return nil
}

// Close closes the socket. Further writes fail.
func (p *ZMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return nil
	}
	err := p.socket.Close()
	p.socket = nil
	return err
}

// ZMQPusher sends encoded camera records to a PULL peer, the way the camera stage feeds
// ZMQSource.
type ZMQPusher struct {
	mu     sync.Mutex
	socket *zmq4.Socket
}

// NewZMQPusher opens a PUSH socket.
func NewZMQPusher(cfg SocketConfig) (*ZMQPusher, error) {
	socket, err := cfg.open(zmq4.PUSH)
	if err != nil {
		return nil, err
	}
	return &ZMQPusher{socket: socket}, nil
}

// Push sends one encoded record. It blocks while no peer is connected.
func (p *ZMQPusher) Push(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return errors.New("pusher is closed")
	}
	if _, err := p.socket.SendBytes(payload, 0); err != nil {
		return errors.Wrap(err, "push frame")
	}
	return nil
}

// Close closes the socket.
func (p *ZMQPusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return nil
	}
	err := p.socket.Close()
	p.socket = nil
	return err
}
