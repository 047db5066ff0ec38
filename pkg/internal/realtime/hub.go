// Package realtime tracks live connections, their room memberships and user
// presence for this process.
//
// All state lives in process memory. Each instance only sees its own
// connections, so presence and room fan-out are per instance; a horizontally
// scaled deployment needs a shared broadcast layer in front of the Hub.
package realtime

import (
	"context"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Conn is one live client connection.
type Conn interface {
	ID() string
	UserID() uint
	// Send queues a packet for delivery.
	Send(data []byte) error
	// TrySend delivers only when the connection can take the packet right
	// away and reports whether it did.
	TrySend(data []byte) bool
}

// Authorizer decides whether a user participates in a room.
type Authorizer interface {
	CanJoin(ctx context.Context, user uint, room Room) bool
}

type Config struct {
	TypingLimit  int
	TypingWindow time.Duration
}

type attachment struct {
	conn   Conn
	rooms  map[Room]struct{}
	typing *SlidingWindow
}

type Hub struct {
	// presence orders online and offline announcements, it is taken before mu.
	presence sync.Mutex
	// seq numbers presence announcements so clients can discard stale ones.
	seq uint64

	mu    sync.RWMutex
	users map[uint]map[string]*attachment
	conns map[string]*attachment
	rooms map[Room]map[string]*attachment

	auth    Authorizer
	metrics *metrics.Collector
	config  Config
	now     func() time.Time
}

func NewHub(auth Authorizer, config Config) *Hub {
	if config.TypingLimit <= 0 {
		config.TypingLimit = 5
	}
	if config.TypingWindow <= 0 {
		config.TypingWindow = 3 * time.Second
	}
	return &Hub{
		users:  make(map[uint]map[string]*attachment),
		conns:  make(map[string]*attachment),
		rooms:  make(map[Room]map[string]*attachment),
		auth:   auth,
		config: config,
		now:    time.Now,
	}
}

func (v *Hub) WithMetrics(collector *metrics.Collector) *Hub {
	v.metrics = collector
	return v
}

func (v *Hub) WithClock(now func() time.Time) *Hub {
	v.now = now
	return v
}

// Register attaches a connection. It reports whether the user just came
// online, which is also when the online event goes out.
func (v *Hub) Register(conn Conn) bool {
	v.presence.Lock()
	defer v.presence.Unlock()

	v.mu.Lock()
	if _, ok := v.conns[conn.ID()]; ok {
		v.mu.Unlock()
		return false
	}
	item := &attachment{
		conn:   conn,
		rooms:  make(map[Room]struct{}),
		typing: NewSlidingWindow(v.config.TypingLimit, v.config.TypingWindow),
	}
	v.conns[conn.ID()] = item
	if _, ok := v.users[conn.UserID()]; !ok {
		v.users[conn.UserID()] = make(map[string]*attachment)
	}
	v.users[conn.UserID()][conn.ID()] = item
	first := len(v.users[conn.UserID()]) == 1
	v.mu.Unlock()

	if first {
		v.metrics.UserOnline()
		v.announce(conn.UserID(), ActionPresenceOnline)
	}
	return first
}

// Unregister detaches a connection from every room. It reports whether that
// was the user's last connection, which is also when the offline event goes
// out.
func (v *Hub) Unregister(conn Conn) bool {
	v.presence.Lock()
	defer v.presence.Unlock()

	v.mu.Lock()
	item, ok := v.conns[conn.ID()]
	if !ok {
		v.mu.Unlock()
		return false
	}
	for room := range item.rooms {
		v.detach(item, room)
	}
	delete(v.conns, conn.ID())
	delete(v.users[conn.UserID()], conn.ID())
	last := len(v.users[conn.UserID()]) == 0
	if last {
		delete(v.users, conn.UserID())
	}
	v.mu.Unlock()

	if last {
		v.metrics.UserOffline()
		v.announce(conn.UserID(), ActionPresenceOffline)
	}
	return last
}

// announce runs under the presence lock.
func (v *Hub) announce(user uint, action string) {
	v.seq++
	v.mu.RLock()
	targets := make([]Conn, 0, len(v.conns))
	for _, item := range v.conns {
		if item.conn.UserID() != user {
			targets = append(targets, item.conn)
		}
	}
	v.mu.RUnlock()

	v.deliver(targets, Packet{Action: action, Payload: map[string]any{"user_id": user, "seq": v.seq}}, false)
}

// Online reports whether the user holds any live connection here.
func (v *Hub) Online(user uint) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.users[user]) > 0
}

func (v *Hub) ConnectionCount(user uint) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.users[user])
}

// Join adds the connection to a room after checking the user belongs there.
// Refused joins are not reported to the client.
func (v *Hub) Join(ctx context.Context, conn Conn, room Room) bool {
	if _, _, ok := room.Parse(); !ok {
		return false
	}
	if v.auth == nil || !v.auth.CanJoin(ctx, conn.UserID(), room) {
		log.Debug().Uint("user", conn.UserID()).Str("room", string(room)).Msg("Ignored unauthorized room join.")
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	item, ok := v.conns[conn.ID()]
	if !ok {
		return false
	}
	item.rooms[room] = struct{}{}
	if _, ok := v.rooms[room]; !ok {
		v.rooms[room] = make(map[string]*attachment)
	}
	v.rooms[room][conn.ID()] = item
	return true
}

func (v *Hub) Leave(conn Conn, room Room) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if item, ok := v.conns[conn.ID()]; ok {
		v.detach(item, room)
	}
}

func (v *Hub) detach(item *attachment, room Room) {
	delete(item.rooms, room)
	if members, ok := v.rooms[room]; ok {
		delete(members, item.conn.ID())
		if len(members) == 0 {
			delete(v.rooms, room)
		}
	}
}

func (v *Hub) InRoom(conn Conn, room Room) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.rooms[room][conn.ID()]
	return ok
}

func (v *Hub) members(room Room, except string) []Conn {
	v.mu.RLock()
	defer v.mu.RUnlock()
	targets := make([]Conn, 0, len(v.rooms[room]))
	for id, item := range v.rooms[room] {
		if id != except {
			targets = append(targets, item.conn)
		}
	}
	return targets
}

// Broadcast queues a durable packet to every connection in the room except
// the one named by except.
func (v *Hub) Broadcast(room Room, packet Packet, except ...string) int {
	packet.Room = room
	return v.deliver(v.members(room, lo.FirstOrEmpty(except)), packet, false)
}

// BroadcastVolatile is Broadcast for events that are dropped rather than
// queued when a connection cannot take them immediately.
func (v *Hub) BroadcastVolatile(room Room, packet Packet, except ...string) int {
	packet.Room = room
	return v.deliver(v.members(room, lo.FirstOrEmpty(except)), packet, true)
}

// PushToUser delivers a packet to every connection of a user.
func (v *Hub) PushToUser(user uint, packet Packet) int {
	v.mu.RLock()
	targets := make([]Conn, 0, len(v.users[user]))
	for _, item := range v.users[user] {
		targets = append(targets, item.conn)
	}
	v.mu.RUnlock()
	return v.deliver(targets, packet, false)
}

func (v *Hub) deliver(targets []Conn, packet Packet, volatile bool) int {
	if len(targets) == 0 {
		return 0
	}
	data := packet.Marshal()
	var delivered int
	for _, conn := range targets {
		if volatile {
			if conn.TrySend(data) {
				delivered++
			} else {
				v.metrics.Dropped("backpressure")
			}
			continue
		}
		if err := conn.Send(data); err != nil {
			log.Warn().Err(err).Str("conn", conn.ID()).Str("action", packet.Action).Msg("Unable to deliver packet.")
			continue
		}
		delivered++
	}
	return delivered
}

// Typing relays a typing indicator to the rest of the room. Indicators from
// connections outside the room or over the rate limit are dropped.
func (v *Hub) Typing(conn Conn, room Room, typing bool) bool {
	v.mu.RLock()
	item, ok := v.rooms[room][conn.ID()]
	v.mu.RUnlock()
	if !ok {
		return false
	}
	if !item.typing.Allow(v.now()) {
		v.metrics.Dropped("rate_limited")
		return false
	}

	action := lo.Ternary(typing, ActionTypingStart, ActionTypingStop)
	v.BroadcastVolatile(room, Packet{
		Action:  action,
		Payload: map[string]any{"user_id": conn.UserID()},
	}, conn.ID())
	return true
}

// Reaction relays a reaction to everyone else in the room.
func (v *Hub) Reaction(conn Conn, room Room, payload any) bool {
	if !v.InRoom(conn, room) {
		return false
	}
	v.Broadcast(room, Packet{
		Action: ActionReaction,
		Payload: map[string]any{
			"user_id":  conn.UserID(),
			"reaction": payload,
		},
	}, conn.ID())
	return true
}
