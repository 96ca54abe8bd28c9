// Package presence relays live location updates between the two
// participants of a booking over websockets.  Nothing here touches the
// database except the optional join authorizer: rooms and connections
// live in memory and are lost on restart.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/clinicride/escort-booking/internal/model"
)

// LivenessInterval is the fixed ping cadence.  A connection that has
// not answered the previous ping when the next one is due is dropped.
const LivenessInterval = 30 * time.Second

// MaxPending bounds the pre-authentication buffer of one connection.
const MaxPending = 256

// ErrInvalidToken is returned by verifiers for any unusable credential.
var ErrInvalidToken = errors.New("invalid token")

// Identity is who a connection belongs to, known only after auth.
type Identity struct {
	UserID string
	Role   model.Role
}

// Verifier turns a bearer credential into an identity.
type Verifier func(token string) (Identity, error)

// JoinAuthorizer reports whether userID may join the room of bookingID.
type JoinAuthorizer func(ctx context.Context, bookingID, userID string) (bool, error)

// Options tunes a Hub.  Zero values pick the defaults.
type Options struct {
	SendBuffer   int            // per-connection outbound queue, default 64
	WriteTimeout time.Duration  // per-frame write deadline, default 10s
	Authorize    JoinAuthorizer // nil admits every authenticated join
	Logger       *slog.Logger
}

// Hub tracks open connections and booking rooms.
//
// One mutex guards both the connection set and the room index, including
// each client's room field, so join, leave and disconnect are serialized
// and a room can never be observed half-updated.
type Hub struct {
	verify       Verifier
	authorize    JoinAuthorizer
	log          *slog.Logger
	sendBuffer   int
	writeTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub returns an empty hub that authenticates with verify.
func NewHub(verify Verifier, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		verify:       verify,
		authorize:    opts.Authorize,
		log:          opts.Logger,
		sendBuffer:   opts.SendBuffer,
		writeTimeout: opts.WriteTimeout,
		now:          time.Now,
		clients:      make(map[*Client]struct{}),
		rooms:        make(map[string]map[*Client]struct{}),
	}
}

// Serve runs one connection until it closes.  It blocks; callers run it
// on the goroutine that accepted the connection.
func (h *Hub) Serve(ctx context.Context, conn Conn) {
	c := h.newClient(conn)
	h.register(c)
	go c.writePump()
	c.readPump(ctx)
}

// Run pings every connection each LivenessInterval until ctx is done,
// then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(LivenessInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.sweep()
		}
	}
}

// sweep terminates connections that missed the last ping and pings
// the rest.
func (h *Hub) sweep() {
	for _, c := range h.snapshot(func(*Client) bool { return true }) {
		if !c.alive.Swap(false) {
			h.log.Info("ws_liveness_timeout", "conn_id", c.id, "user_id", c.userID())
			c.close()
			continue
		}
		if err := c.conn.WriteControl(pingMessage, nil, h.now().Add(h.writeTimeout)); err != nil {
			h.log.Debug("ws_ping_failed", "conn_id", c.id, "err", err)
			c.close()
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("ws_connected", "conn_id", c.id, "connections", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.leaveLocked(c)
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	for _, c := range h.snapshot(func(*Client) bool { return true }) {
		c.close()
	}
}

// join binds c to room, leaving its previous room first.  It reports
// false when c was already in room.
func (h *Hub) join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, open := h.clients[c]; !open {
		return false
	}
	if c.room == room {
		return false
	}
	h.leaveLocked(c)
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.room = room
	return true
}

// leaveLocked removes c from its room and drops the room once empty.
func (h *Hub) leaveLocked(c *Client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// peers returns the other members of c's room.
func (h *Hub) peers(c *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.room == "" {
		return nil
	}
	out := make([]*Client, 0, len(h.rooms[c.room]))
	for m := range h.rooms[c.room] {
		if m != c {
			out = append(out, m)
		}
	}
	return out
}

func (h *Hub) snapshot(keep func(*Client) bool) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// RoomSize reports how many connections are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms reports how many rooms exist.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Connections reports how many connections are open.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToRoom sends payload to every member of the booking's room.
func (h *Hub) BroadcastToRoom(bookingID string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[bookingID]))
	for c := range h.rooms[bookingID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.fanout(targets, payload)
}

// BroadcastToUser sends payload to every authenticated connection of userID.
func (h *Hub) BroadcastToUser(userID string, payload any) {
	h.fanout(h.snapshot(func(c *Client) bool {
		id := c.identity.Load()
		return id != nil && id.UserID == userID
	}), payload)
}

// BroadcastToRole sends payload to every authenticated connection with role.
func (h *Hub) BroadcastToRole(role model.Role, payload any) {
	h.fanout(h.snapshot(func(c *Client) bool {
		id := c.identity.Load()
		return id != nil && id.Role == role
	}), payload)
}

func (h *Hub) fanout(targets []*Client, payload any) {
	if len(targets) == 0 {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("ws_broadcast_marshal_failed", "err", err)
		return
	}
	for _, c := range targets {
		c.trySend(raw)
	}
}
