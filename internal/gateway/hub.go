// Package gateway exposes the auction engine over WebSocket and a small
// HTTP API. Bids and admin commands arrive as JSON frames on the socket;
// engine notices are broadcast to every connected client.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/SubratDash67/iplauctionbot/internal/engine"
)

// Hub maintains the set of active clients and broadcasts engine notices
// to them.
type Hub struct {
	engine *engine.Engine

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
}

// NewHub initializes a hub bound to the engine.
func NewHub(e *engine.Engine) *Hub {
	return &Hub{
		engine:     e,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run handles client registration and broadcast until ctx is cancelled.
// A client whose send buffer is full is dropped rather than blocking the
// broadcast of live auction state.
func (h *Hub) Run(ctx context.Context) {
	notices, cancel := h.engine.Subscribe(64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			slog.Info("gateway hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				client.closeSend()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("gateway client connected", "clients", h.clientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			slog.Info("gateway client disconnected", "clients", h.clientCount())

		case n, ok := <-notices:
			if !ok {
				return
			}
			h.broadcastNotice(n)

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *Hub) broadcastNotice(n engine.Notice) {
	payload, err := json.Marshal(Reply{Type: ReplyNotice, Notice: &n})
	if err != nil {
		slog.Error("gateway: encode notice failed", "error", err, "kind", n.Kind)
		return
	}
	h.send(payload)
}

func (h *Hub) send(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.enqueue(message) {
			client.closeSend()
			delete(h.clients, client)
			slog.Warn("gateway: dropped slow client")
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
