package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
	"github.com/SubratDash67/iplauctionbot/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Frame is an incoming command from a connected participant.
type Frame struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	// Amount is the bid in rupees; zero means a minimum raise.
	Amount   int64  `json:"amount,omitempty"`
	Team     string `json:"team,omitempty"`
	PlayerID int64  `json:"player_id,omitempty"`
	Seconds  int64  `json:"seconds,omitempty"`
	List     string `json:"list,omitempty"`
	// Target is the user a registration command applies to.
	Target string `json:"target,omitempty"`
}

// Reply types sent back over the socket.
const (
	ReplyOK     = "ok"
	ReplyError  = "error"
	ReplyNotice = "notice"
	ReplyState  = "state"
)

// Reply is an outgoing frame: a direct answer to a command, or a
// broadcast notice.
type Reply struct {
	Type    string            `json:"type"`
	Op      string            `json:"op,omitempty"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Bid     *auction.Bid      `json:"bid,omitempty"`
	Notice  *engine.Notice    `json:"notice,omitempty"`
	State   *engine.Snapshot  `json:"state,omitempty"`
}

// Client is one active WebSocket connection.
type Client struct {
	server *Server
	hub    *Hub
	conn   *websocket.Conn

	// mu guards send and closed: the read pump queues replies while the
	// hub may be closing the channel.
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(server *Server, conn *websocket.Conn) *Client {
	return &Client{
		server: server,
		hub:    server.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

// enqueue queues an outbound payload without blocking. Returns false
// when the buffer is full or the client is already closed.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Safe to call from
// the hub and the pumps in any order.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump pumps frames from the websocket connection into the engine.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("gateway: read failed", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.reply(Reply{Type: ReplyError, Code: "BAD_FRAME", Message: "malformed frame"})
			continue
		}

		c.reply(c.server.Dispatch(ctx, frame))
	}
}

func (c *Client) reply(r Reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		slog.Error("gateway: encode reply failed", "error", err)
		return
	}
	if !c.enqueue(payload) {
		slog.Warn("gateway: reply dropped", "op", r.Op)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
