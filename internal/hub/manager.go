package hub

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kasupel-server/internal/engine"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Store loads and persists games for hub construction.
type Store interface {
	engine.GameStore
	GameByID(ctx context.Context, id int64) (*models.Game, error)
}

// Manager maps live game ids to their hubs, creating hubs (and their
// engines) on demand from persisted game snapshots.
type Manager struct {
	mu   sync.Mutex
	hubs map[int64]*Hub

	store  Store
	users  engine.UserStore
	notify engine.Notifier
}

func NewManager(store Store, users engine.UserStore, notify engine.Notifier) *Manager {
	return &Manager{
		hubs:   make(map[int64]*Hub),
		store:  store,
		users:  users,
		notify: notify,
	}
}

// hubFor returns the hub for a game, creating it if the game exists and has
// not ended.
func (m *Manager) hubFor(ctx context.Context, gameID int64) (*Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.hubs[gameID]; ok {
		return h, nil
	}
	g, err := m.store.GameByID(ctx, gameID)
	if err != nil {
		return nil, kerrors.New(kerrors.GameNotFound)
	}
	if g.State() == models.GameFinished {
		return nil, kerrors.New(kerrors.GameEnded)
	}
	eng, err := engine.New(g, m.store, m.users, m.notify)
	if err != nil {
		log.Printf("Hub manager: building engine for game %d: %v", gameID, err)
		return nil, kerrors.New(kerrors.InternalError)
	}
	h := newHub(gameID, eng, m)
	m.hubs[gameID] = h
	return h, nil
}

func (m *Manager) remove(gameID int64) {
	m.mu.Lock()
	delete(m.hubs, gameID)
	m.mu.Unlock()
}

// hubEmptied retires a hub once its last socket is gone. The engine
// persists after every command, so the snapshot is already current; the
// sweep recreates a hub if the game later needs a timeout asserted.
func (m *Manager) hubEmptied(h *Hub) {
	m.mu.Lock()
	if m.hubs[h.gameID] == h {
		delete(m.hubs, h.gameID)
	}
	m.mu.Unlock()
	h.shutdown()
}

func (m *Manager) snapshot() []*Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Hub, 0, len(m.hubs))
	for _, h := range m.hubs {
		out = append(out, h)
	}
	return out
}

// Connect authenticates a socket connect against a game, upgrades it and
// attaches it to the game's hub. Errors returned before the upgrade are
// sent as normal HTTP responses by the caller.
func (m *Manager) Connect(w http.ResponseWriter, r *http.Request, user *models.User, sess *models.Session, gameID int64) error {
	h, err := m.hubFor(r.Context(), gameID)
	if err != nil {
		return err
	}
	g := h.Engine().Game()
	side, ok := g.SideOf(user.ID)
	if !ok {
		// The hub may hold a pre-pairing snapshot while its reload is still
		// queued; the store row is already current.
		if fresh, ferr := m.store.GameByID(r.Context(), gameID); ferr == nil {
			side, ok = fresh.SideOf(user.ID)
		}
		if !ok {
			return kerrors.New(kerrors.NotAParticipant)
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Hub %d: upgrade failed: %v", gameID, err)
		return nil
	}

	c := newClient(h, conn, user.ID, side, sess.ExpiresAt)
	h.register(c)
	go c.writePump()
	go c.readPump()

	// A started game greets the socket with its state, and with the legal
	// moves when it is this player's turn.
	h.post(func() {
		eng := h.Engine()
		if eng.Game().State() != models.GameStarted {
			return
		}
		c.sendEvent(engine.EventGameState, eng.GameState())
		if eng.Game().CurrentTurn == side {
			c.sendEvent(engine.EventAllowedMoves, eng.AllowedMoves(side))
		}
	})
	return nil
}

// GameStarted reloads a game that just gained its second player and tells
// any waiting socket. Implements matchmaking.HubNotifier.
func (m *Manager) GameStarted(gameID int64) {
	m.mu.Lock()
	h, ok := m.hubs[gameID]
	m.mu.Unlock()
	if !ok {
		return
	}
	h.post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g, err := m.store.GameByID(ctx, gameID)
		if err != nil {
			log.Printf("Hub %d: reloading started game: %v", gameID, err)
			return
		}
		eng, err := engine.New(g, m.store, m.users, m.notify)
		if err != nil {
			log.Printf("Hub %d: rebuilding engine: %v", gameID, err)
			return
		}
		h.setEngine(eng)
		h.EmitToBoth(engine.EventGameStart, eng.GameState())
	})
}

// GameCancelled tears down the hub of a removed game, telling any waiting
// socket why. Implements matchmaking.HubNotifier.
func (m *Manager) GameCancelled(gameID int64, reason models.DisconnectReason) {
	m.mu.Lock()
	h, ok := m.hubs[gameID]
	delete(m.hubs, gameID)
	m.mu.Unlock()
	if !ok {
		return
	}
	h.EmitToBoth(engine.EventGameDisconnect, disconnectPayload{Reason: reason})
	h.shutdown()
}

// PostTimeout routes a sweep-detected timeout into the game's serialised
// command stream. Implements timing.TimeoutPoster.
func (m *Manager) PostTimeout(gameID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := m.hubFor(ctx, gameID)
	if err != nil {
		return
	}
	h.post(func() {
		cmdCtx, cmdCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cmdCancel()
		err := h.Engine().AssertTimeout(cmdCtx, time.Now())
		// Raced moves make these codes routine, not faults.
		if err != nil && !kerrors.Is(err, kerrors.NotTimedOut) && !kerrors.Is(err, kerrors.GameNotInProgress) {
			log.Printf("Hub %d: timeout assertion: %v", gameID, err)
		}
	})
}

// DeliverNotification pushes a notification event to every socket the user
// has open on any game. Implements notifications.LiveDeliverer.
func (m *Manager) DeliverNotification(userID int64, n models.NotificationWire) bool {
	delivered := false
	for _, h := range m.snapshot() {
		for _, c := range h.clientsForUser(userID) {
			if c.trySend(encodeFrame(engine.EventNotification, nil, n)) {
				delivered = true
			}
		}
	}
	return delivered
}
