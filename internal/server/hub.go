package server

import (
	"encoding/json"
	"log"
	"sync"

	"tetrisduel/internal/game"
	"tetrisduel/internal/identity"
	"tetrisduel/internal/logging"
	"tetrisduel/internal/session"
)

const sendBuffer = 64

// Connection is the binding of one WebSocket to a session seat, fixed at
// join time.
type Connection struct {
	Identity identity.Identity
	Name     string
	Code     string
	Role     session.Role
}

// client is an attached connection and its outbound queue. kick closes the
// connection.
type client struct {
	conn Connection
	send chan []byte
	kick func()
}

// Hub tracks the connections watching each session and fans events out to
// them. It implements game.Publisher.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[*client]struct{})}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[c.conn.Code]
	if !ok {
		set = make(map[*client]struct{})
		h.sessions[c.conn.Code] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.sessions[c.conn.Code]
	delete(set, c)
	if len(set) == 0 {
		delete(h.sessions, c.conn.Code)
	}
}

// Forget drops every connection of a removed session. The connections stay
// open until their clients disconnect.
func (h *Hub) Forget(code string) {
	h.mu.Lock()
	delete(h.sessions, code)
	h.mu.Unlock()
}

// Count returns the number of connections attached to a session.
func (h *Hub) Count(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[code])
}

// Publish sends ev to every connection of the session. Join and leave
// announcements skip the player they are about. Slow connections drop
// updates rather than block the game, and are closed when they would miss
// a terminal or error event.
func (h *Hub) Publish(code string, ev game.Event) {
	msg, err := encode(ev.Type(), ev)
	if err != nil {
		log.Printf("encode %s: %v", ev.Type(), err)
		return
	}
	skip := subject(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.sessions[code] {
		if !skip.IsZero() && c.conn.Identity == skip {
			continue
		}
		c.enqueue(msg, mustDeliver(ev))
	}
	logging.Debugf("published %s to %s", ev.Type(), code)
}

func subject(ev game.Event) identity.Identity {
	switch e := ev.(type) {
	case game.PlayerJoined:
		return e.Identity
	case game.PlayerLeft:
		return e.Identity
	}
	return identity.Identity{}
}

func mustDeliver(ev game.Event) bool {
	switch ev.(type) {
	case game.MatchFinished, game.Error:
		return true
	}
	return false
}

func (c *client) enqueue(msg []byte, must bool) {
	select {
	case c.send <- msg:
		return
	default:
	}
	if !must {
		logging.Debugf("dropping message for %s: send buffer full", c.conn.Identity)
		return
	}
	log.Printf("closing slow connection %s in %s", c.conn.Identity, c.conn.Code)
	if c.kick != nil {
		c.kick()
	}
}

// sendEvent queues ev for this connection only.
func (c *client) sendEvent(ev game.Event) {
	msg, err := encode(ev.Type(), ev)
	if err != nil {
		log.Printf("encode %s: %v", ev.Type(), err)
		return
	}
	c.enqueue(msg, mustDeliver(ev))
}

func encode(msgType string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: msgType, Payload: p})
}
