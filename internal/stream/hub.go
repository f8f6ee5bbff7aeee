// Package stream broadcasts per-turn thermodynamic frames to websocket
// clients.
package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// Frame is one broadcast message.
type Frame struct {
	Turn        int64        `json:"turn"`
	Temperature float64      `json:"temperature"`
	Kinetic     float64      `json:"kinetic"`
	Potential   float64      `json:"potential"`
	Total       float64      `json:"total"`
	Atoms       int          `json:"atoms"`
	Positions   [][3]float64 `json:"positions,omitempty"`
}

// NewFrame builds a frame from a sample. Positions are included when
// withPositions is set.
func NewFrame(smp thermo.Sample, s *md.State, withPositions bool) Frame {
	f := Frame{
		Turn:        smp.Turn,
		Temperature: smp.Temperature,
		Kinetic:     smp.Kinetic,
		Potential:   smp.Potential,
		Total:       smp.Total(),
		Atoms:       len(s.Atoms),
	}
	if withPositions {
		f.Positions = make([][3]float64, len(s.Atoms))
		for i := range s.Atoms {
			f.Positions[i] = s.Atoms[i].Pos
		}
	}
	return f
}

const writeTimeout = 2 * time.Second

// Hub tracks connected clients. It implements http.Handler for the
// websocket endpoint.
type Hub struct {
	upgrader websocket.Upgrader
	log      logr.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	last    *Frame
}

func NewHub(log logr.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection, sends the latest frame if there is one
// and keeps the client registered until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(err, "websocket upgrade failed")
		return
	}
	defer conn.Close()

	connMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = connMu
	last := h.last
	h.mu.Unlock()
	defer h.remove(conn)
	h.log.V(1).Info("client connected", "remote", r.RemoteAddr)

	if last != nil {
		connMu.Lock()
		err := write(conn, *last)
		connMu.Unlock()
		if err != nil {
			return
		}
	}
	// clients only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.V(1).Info("client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

func write(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

// Broadcast sends f to every client and drops clients whose write fails.
func (h *Hub) Broadcast(f Frame) {
	h.mu.Lock()
	h.last = &f
	h.mu.Unlock()

	var failed []*websocket.Conn
	h.mu.RLock()
	for client, mu := range h.clients {
		mu.Lock()
		err := write(client, f)
		mu.Unlock()
		if err != nil {
			h.log.V(1).Info("dropping client", "err", err.Error())
			client.Close()
			failed = append(failed, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range failed {
		h.remove(client)
	}
}

// Serve listens on addr with the hub at /ws until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	h.log.Info("streaming", "addr", addr, "path", "/ws")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
