package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/wastewise/internal/engine"
)

const (
	maxStreamConns = 8
	streamBuffer   = 64
	writeWait      = 5 * time.Second
	pingEvery      = 15 * time.Second
)

// hub fans tick samples out to websocket subscribers. Slow subscribers drop
// samples rather than stall the simulation.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan []byte
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]chan []byte)}
}

func (h *hub) subscribe() (uint64, chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) >= maxStreamConns {
		return 0, nil, false
	}
	h.nextID++
	ch := make(chan []byte, streamBuffer)
	h.subs[h.nextID] = ch
	return h.nextID, ch, true
}

func (h *hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// broadcast is registered as a simulation sample observer.
func (h *hub) broadcast(ts engine.TickSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return
	}
	b, err := json.Marshal(ts)
	if err != nil {
		slog.Warn("encode tick sample", "error", err)
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and pushes one JSON tick sample per
// message until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.hub.subscribe()
	if !ok {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.hub.unsubscribe(id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	slog.Info("stream client connected", "sub_id", id)

	// Reader: only needed to notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case b := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			slog.Info("stream client disconnected", "sub_id", id)
			return
		case <-r.Context().Done():
			return
		}
	}
}
