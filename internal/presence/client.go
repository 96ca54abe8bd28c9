package presence

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	textMessage = websocket.TextMessage
	pingMessage = websocket.PingMessage
)

// Conn is the part of *websocket.Conn the relay uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one live connection.
//
// States: connected (identity nil), authenticated (identity set),
// in room (room set), closed.  Inbound frames are handled one at a time
// on the read goroutine; pending and the handlers touch no shared state
// except through the hub.
type Client struct {
	id   string
	hub  *Hub
	conn Conn

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	closeOnce sync.Once
	alive     atomic.Bool
	identity  atomic.Pointer[Identity]

	// room is guarded by hub.mu.
	room string

	// read goroutine only
	pending [][]byte
}

func (h *Hub) newClient(conn Conn) *Client {
	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	c.alive.Store(true)
	conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})
	return c
}

func (c *Client) userID() string {
	if id := c.identity.Load(); id != nil {
		return id.UserID
	}
	return ""
}

func (c *Client) readPump(ctx context.Context) {
	defer c.close()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.log.Debug("ws_read_failed", "conn_id", c.id, "err", err)
			}
			return
		}
		c.handle(ctx, raw)
	}
}

func (c *Client) writePump() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(c.hub.now().Add(c.hub.writeTimeout))
		if err := c.conn.WriteMessage(textMessage, msg); err != nil {
			c.hub.log.Debug("ws_write_failed", "conn_id", c.id, "err", err)
			c.close()
			return
		}
	}
}

// trySend queues msg without blocking.  Closed or backed-up connections
// are skipped.
func (c *Client) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.hub.log.Warn("ws_send_dropped", "conn_id", c.id, "user_id", c.userID())
		return false
	}
}

func (c *Client) sendJSON(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Error("ws_marshal_failed", "conn_id", c.id, "err", err)
		return
	}
	c.trySend(raw)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		_ = c.conn.Close()
		c.hub.log.Debug("ws_disconnected", "conn_id", c.id, "user_id", c.userID())
	})
}

// handle dispatches one inbound frame.  Malformed frames are logged and
// dropped; the connection stays open.
func (c *Client) handle(ctx context.Context, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		c.hub.log.Warn("ws_malformed_message", "conn_id", c.id, "user_id", c.userID())
		return
	}

	switch msg.Type {
	case TypePing:
		c.sendJSON(typeOnly{Type: TypePong})
		return
	case TypeAuth:
		c.handleAuth(ctx, msg.Token)
		return
	}

	id := c.identity.Load()
	if id == nil {
		if len(c.pending) >= MaxPending {
			c.hub.log.Warn("ws_pending_overflow", "conn_id", c.id, "type", msg.Type)
			return
		}
		c.pending = append(c.pending, raw)
		return
	}

	switch msg.Type {
	case TypeJoinBooking:
		c.handleJoin(ctx, id, msg.BookingID)
	case TypeLocationUpdate:
		c.handleLocation(id, msg.Location)
	default:
		c.hub.log.Warn("ws_unknown_message", "conn_id", c.id, "type", msg.Type)
	}
}

// handleAuth verifies the token, acknowledges, then replays buffered
// frames in arrival order.  A second auth on an authenticated connection
// is acknowledged again and does nothing else, so the buffer is never
// replayed twice.
func (c *Client) handleAuth(ctx context.Context, token string) {
	if id := c.identity.Load(); id != nil {
		c.sendJSON(authenticatedMsg{Type: TypeAuthenticated, UserID: id.UserID, Role: id.Role})
		return
	}
	if token == "" {
		c.sendJSON(errorMsg{Type: TypeError, Message: "Invalid token"})
		return
	}
	id, err := c.hub.verify(token)
	if err != nil {
		c.hub.log.Info("ws_auth_failed", "conn_id", c.id, "err", err)
		c.sendJSON(errorMsg{Type: TypeError, Message: "Invalid token"})
		return
	}
	c.identity.Store(&id)
	c.sendJSON(authenticatedMsg{Type: TypeAuthenticated, UserID: id.UserID, Role: id.Role})
	c.hub.log.Info("ws_authenticated", "conn_id", c.id, "user_id", id.UserID, "role", id.Role)

	pending := c.pending
	c.pending = nil
	for _, raw := range pending {
		c.handle(ctx, raw)
	}
}

func (c *Client) handleJoin(ctx context.Context, id *Identity, bookingID string) {
	if bookingID == "" {
		c.hub.log.Warn("ws_malformed_message", "conn_id", c.id, "type", TypeJoinBooking)
		return
	}
	if c.hub.authorize != nil {
		actx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ok, err := c.hub.authorize(actx, bookingID, id.UserID)
		cancel()
		if err != nil {
			c.hub.log.Error("ws_join_authorize_failed", "booking_id", bookingID, "user_id", id.UserID, "err", err)
			c.sendJSON(errorMsg{Type: TypeError, Message: "Internal server error"})
			return
		}
		if !ok {
			c.hub.log.Info("ws_join_denied", "booking_id", bookingID, "user_id", id.UserID)
			c.sendJSON(errorMsg{Type: TypeError, Message: "You don't have access to this booking"})
			return
		}
	}
	if c.hub.join(c, bookingID) {
		c.hub.log.Info("ws_joined_booking", "booking_id", bookingID, "user_id", id.UserID, "role", id.Role)
	}
	c.sendJSON(joinedMsg{Type: TypeJoinedBooking, BookingID: bookingID})
}

func (c *Client) handleLocation(id *Identity, loc *locationFix) {
	if loc == nil || loc.Lat == nil || loc.Lng == nil {
		c.hub.log.Warn("ws_malformed_message", "conn_id", c.id, "type", TypeLocationUpdate)
		return
	}
	peers := c.hub.peers(c)
	if len(peers) == 0 {
		return
	}
	out := Location{
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Speed:     loc.Speed,
		Heading:   loc.Heading,
		Timestamp: c.hub.now().UnixMilli(),
	}
	raw, err := json.Marshal(locationMsg{Type: TypeLocationUpdated, UserID: id.UserID, Role: id.Role, Location: out})
	if err != nil {
		c.hub.log.Error("ws_marshal_failed", "conn_id", c.id, "err", err)
		return
	}
	for _, p := range peers {
		p.trySend(raw)
	}
}
