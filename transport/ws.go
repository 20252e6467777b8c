package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-perception/perception"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// TrackingHub fans stage outputs out to browser clients as JSON over websockets.
type TrackingHub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]*sync.Mutex
	logger   *zap.Logger
}

// NewTrackingHub creates a hub with no clients.
func NewTrackingHub(logger *zap.Logger) *TrackingHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		logger:  logger,
	}
}

// Handler returns the hub's routes: /ws for clients and /healthz for probes.
func (h *TrackingHub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/healthz", h.handleHealth)
	return mux
}

// Serve listens on addr until ctx is done.
func (h *TrackingHub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		h.closeAll()
	}()

	h.logger.Info("tracking hub listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "tracking hub")
	}
	return nil
}

// Write implements perception.Writer. The record is sent to every connected client; clients that
// fail to keep up are dropped.
func (h *TrackingHub) Write(_ context.Context, ch perception.Channel, msg perception.Message) error {
	fields := msg.Fields()
	fields["channel"] = string(ch)
	payload, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "encode tracking message")
	}

	h.mu.Lock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, writeMu := range h.clients {
		clients[conn] = writeMu
	}
	h.mu.Unlock()

	// Clients are written in parallel so one slow browser costs at most writeWait.
	var (
		wg      sync.WaitGroup
		staleMu sync.Mutex
		stale   []*websocket.Conn
	)
	for conn, writeMu := range clients {
		wg.Add(1)
		go func(conn *websocket.Conn, writeMu *sync.Mutex) {
			defer wg.Done()
			if err := writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
				staleMu.Lock()
				stale = append(stale, conn)
				staleMu.Unlock()
			}
		}(conn, writeMu)
	}
	wg.Wait()
	for _, conn := range stale {
		h.logger.Debug("dropping client", zap.String("remote", conn.RemoteAddr().String()))
		h.removeClient(conn)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *TrackingHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *TrackingHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = writeMu
	h.mu.Unlock()

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer h.removeClient(conn)
		// Clients never send anything meaningful; reading drives the pong handler.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *TrackingHub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *TrackingHub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *TrackingHub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.removeClient(conn)
	}
}

func writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
