package gcs

import (
	"sync"

	"github.com/gorilla/websocket"
)

// hub is the WebSocket client set, mutated only by the accept/connection
// handlers per spec.md §5's shared-resource policy ("WebSocket client set:
// mutated only by the accept/connection handlers"), grounded in
// GChief117-SwarmC2/backend/main.go's package-level clients map and
// clientsMutex, generalized to a struct and to tracking which drones have an
// active video stream.
type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	streamMu sync.Mutex
	streams  map[string]bool
}

func newHub() *hub {
	return &hub{
		clients: make(map[*websocket.Conn]struct{}),
		streams: make(map[string]bool),
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// broadcast sends frame to every connected client, tolerating per-client send
// errors by continuing with the rest (spec.md §5: "WebSocket broadcasts
// tolerate per-client send errors by continuing with the remaining clients").
func (h *hub) broadcast(frame any) {
	h.mu.RLock()
	var failed []*websocket.Conn
	for conn := range h.clients {
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			failed = append(failed, conn)
		}
	}
	h.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, conn := range failed {
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) startStream(droneID string) {
	h.streamMu.Lock()
	h.streams[droneID] = true
	h.streamMu.Unlock()
}

func (h *hub) stopStream(droneID string) {
	h.streamMu.Lock()
	delete(h.streams, droneID)
	h.streamMu.Unlock()
}

func (h *hub) isStreaming(droneID string) bool {
	h.streamMu.Lock()
	defer h.streamMu.Unlock()
	return h.streams[droneID]
}
