// Package hub is the realtime fan-out layer. Each live game gets one Hub: a
// single dispatcher goroutine that processes engine commands in arrival
// order and broadcasts emitted events to the two participants' sockets. At
// most one socket may exist per (game, user); a second connect displaces
// the first.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"kasupel-server/internal/engine"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

// Frame is the socket message envelope in both directions. Seq, when a
// client supplies one, is echoed on the ack or error frame so the client
// can pair responses with requests.
type Frame struct {
	Event string          `json:"event"`
	Seq   *int64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, seq *int64, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("Hub: marshalling %s payload: %v", event, err)
		payload = []byte("{}")
	}
	frame, _ := json.Marshal(Frame{Event: event, Seq: seq, Data: payload})
	return frame
}

// Hub owns one game's sockets and serialises its engine commands.
type Hub struct {
	gameID  int64
	manager *Manager
	engine  *engine.Engine

	mu      sync.RWMutex
	clients map[models.Side]*Client

	commands chan func()
	done     chan struct{}
	closed   bool
}

func newHub(gameID int64, eng *engine.Engine, manager *Manager) *Hub {
	h := &Hub{
		gameID:   gameID,
		manager:  manager,
		engine:   eng,
		clients:  make(map[models.Side]*Client),
		commands: make(chan func(), 64),
		done:     make(chan struct{}),
	}
	eng.SetEmitter(h)
	go h.run()
	return h
}

// run is the dispatcher: every engine command on this game executes here,
// one at a time, which is what makes the engine's state machine sequential.
func (h *Hub) run() {
	for {
		select {
		case cmd := <-h.commands:
			cmd()
		case <-h.done:
			return
		}
	}
}

// post queues a command for serialised execution. Returns false once the
// hub is shut down.
func (h *Hub) post(cmd func()) bool {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return false
	}
	select {
	case h.commands <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// register attaches a socket to a seat, displacing any previous one.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	previous := h.clients[c.side]
	h.clients[c.side] = c
	h.mu.Unlock()

	if previous != nil {
		previous.sendEvent(engine.EventGameDisconnect,
			disconnectPayload{Reason: models.DisconnectNewConnection})
		previous.close()
	}
	log.Printf("Hub %d: user %d connected as side %d", h.gameID, c.userID, c.side)
}

// unregister detaches a socket if it is still the seat's current one.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.side] == c {
		delete(h.clients, c.side)
	}
	empty := len(h.clients) == 0
	h.mu.Unlock()

	log.Printf("Hub %d: user %d disconnected", h.gameID, c.userID)
	if empty {
		h.manager.hubEmptied(h)
	}
}

// shutdown stops the dispatcher and closes any remaining sockets.
func (h *Hub) shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[models.Side]*Client)
	h.mu.Unlock()

	close(h.done)
	for _, c := range clients {
		c.close()
	}
}

// Engine returns the hub's engine. Mutation happens only inside dispatcher
// commands; other callers must treat the game as read-only.
func (h *Hub) Engine() *engine.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

func (h *Hub) setEngine(eng *engine.Engine) {
	h.mu.Lock()
	h.engine = eng
	h.mu.Unlock()
	eng.SetEmitter(h)
}

// clientFor returns the socket occupying a seat, if any.
func (h *Hub) clientFor(side models.Side) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[side]
}

// clientsForUser returns this hub's sockets belonging to a user.
func (h *Hub) clientsForUser(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for _, c := range h.clients {
		if c.userID == userID {
			out = append(out, c)
		}
	}
	return out
}

type disconnectPayload struct {
	Reason models.DisconnectReason `json:"reason"`
}

// EmitToSide implements engine.Emitter.
func (h *Hub) EmitToSide(side models.Side, event string, payload any) {
	if c := h.clientFor(side); c != nil {
		c.trySend(encodeFrame(event, nil, payload))
	}
}

// EmitToBoth implements engine.Emitter. A stalled socket misses the event
// and resyncs with game_state on reconnect.
func (h *Hub) EmitToBoth(event string, payload any) {
	frame := encodeFrame(event, nil, payload)
	h.mu.RLock()
	for _, c := range h.clients {
		c.trySend(frame)
	}
	h.mu.RUnlock()
}

// SideConnected implements engine.Emitter.
func (h *Hub) SideConnected(side models.Side) bool {
	return h.clientFor(side) != nil
}

// DisconnectAll implements engine.Emitter: sends game_disconnect with the
// reason, closes every socket, and retires the hub.
func (h *Hub) DisconnectAll(reason models.DisconnectReason) {
	h.EmitToBoth(engine.EventGameDisconnect, disconnectPayload{Reason: reason})
	h.manager.remove(h.gameID)
	// Shut down asynchronously: DisconnectAll is called from inside the
	// dispatcher, which must not wait on its own teardown.
	go h.shutdown()
}

// errorFrame renders a request error for socket delivery.
func errorFrame(seq *int64, err error) []byte {
	kerr := kerrors.From(err)
	return encodeFrame("error", seq, kerr)
}
