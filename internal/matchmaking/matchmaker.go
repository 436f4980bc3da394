// Package matchmaking pairs players into games. Open "find" games are
// indexed by their exact time-control profile, so two users asking for the
// same profile rendezvous on one game; invitations target a named user and
// are never indexed.
package matchmaking

import (
	"context"
	"log"
	"sync"
	"time"

	"kasupel-server/internal/engine"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

// GameStore persists and removes game rows.
type GameStore interface {
	NextGameID(ctx context.Context) (int64, error)
	InsertGame(ctx context.Context, g *models.Game) error
	SaveGame(ctx context.Context, g *models.Game) error
	DeleteGame(ctx context.Context, id int64) error
	SearchingGames(ctx context.Context) ([]*models.Game, error)
}

// UserDirectory resolves invitees by username.
type UserDirectory interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Notifier enqueues matchmaking notifications.
type Notifier interface {
	Push(ctx context.Context, userID int64, typeCode string, gameID *int64)
}

// HubNotifier tells the socket layer about lifecycle changes for games that
// may already have connected participants.
type HubNotifier interface {
	GameStarted(gameID int64)
	GameCancelled(gameID int64, reason models.DisconnectReason)
}

// Matchmaker owns the pending-search index. All pairing decisions happen
// under its lock, so two simultaneous finders of one profile can never both
// bind the same game.
type Matchmaker struct {
	mu      sync.Mutex
	pending map[models.TimeControl]*models.Game

	store  GameStore
	users  UserDirectory
	notify Notifier
	hubs   HubNotifier
}

func New(store GameStore, users UserDirectory, notify Notifier, hubs HubNotifier) *Matchmaker {
	return &Matchmaker{
		pending: make(map[models.TimeControl]*models.Game),
		store:   store,
		users:   users,
		notify:  notify,
		hubs:    hubs,
	}
}

// Rebuild reloads the pending index from persisted searching games after a
// restart. With duplicates (which a crash mid-pairing could leave), the
// oldest wins and the rest stay reachable by id only.
func (m *Matchmaker) Rebuild(ctx context.Context) error {
	games, err := m.store.SearchingGames(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range games {
		existing, ok := m.pending[g.TimeControl]
		if !ok || g.OpenedAt.Before(existing.OpenedAt) {
			m.pending[g.TimeControl] = g
		}
	}
	log.Printf("Matchmaker: rebuilt index with %d pending searches", len(m.pending))
	return nil
}

// Find either joins the pending game for an exact profile or creates a new
// pending game. A re-find by the same host returns their existing game.
func (m *Matchmaker) Find(ctx context.Context, user *models.User, profile models.TimeControl, now time.Time) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.pending[profile]; ok {
		if g.HostID == user.ID {
			return g, nil
		}
		delete(m.pending, profile)
		awayID := user.ID
		started := now
		g.AwayID = &awayID
		g.StartedAt = &started
		g.LastTurn = &started
		if err := m.store.SaveGame(ctx, g); err != nil {
			// Re-index so the search is not lost.
			g.AwayID = nil
			g.StartedAt = nil
			g.LastTurn = nil
			m.pending[profile] = g
			return nil, err
		}
		m.notify.Push(ctx, g.HostID, models.NotifyMatchFound, &g.ID)
		m.hubs.GameStarted(g.ID)
		log.Printf("Matchmaker: paired users %d and %d into game %d", g.HostID, user.ID, g.ID)
		return g, nil
	}

	g, err := m.createGame(ctx, user.ID, nil, profile, now)
	if err != nil {
		return nil, err
	}
	m.pending[profile] = g
	return g, nil
}

// SendInvitation creates an invited game for a named opponent.
func (m *Matchmaker) SendInvitation(ctx context.Context, inviter *models.User, inviteeUsername string, profile models.TimeControl, now time.Time) (*models.Game, error) {
	invitee, err := m.users.UserByUsername(ctx, inviteeUsername)
	if err != nil {
		return nil, err
	}
	if invitee.ID == inviter.ID {
		return nil, kerrors.New(kerrors.CannotInviteSelf)
	}

	// InvitedID goes in with the insert: a row without it would look like a
	// public search to Rebuild.
	inviteeID := invitee.ID
	g, err := m.createGame(ctx, inviter.ID, &inviteeID, profile, now)
	if err != nil {
		return nil, err
	}
	m.notify.Push(ctx, invitee.ID, models.NotifyInviteReceived, &g.ID)
	return g, nil
}

// AcceptInvitation starts an invited game. Only the invitee may accept.
func (m *Matchmaker) AcceptInvitation(ctx context.Context, user *models.User, g *models.Game, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g.State() != models.GameInvited || *g.InvitedID != user.ID {
		return kerrors.New(kerrors.NotInvited)
	}
	awayID := user.ID
	started := now
	g.AwayID = &awayID
	g.InvitedID = nil
	g.StartedAt = &started
	g.LastTurn = &started
	if err := m.store.SaveGame(ctx, g); err != nil {
		return err
	}
	m.notify.Push(ctx, g.HostID, models.NotifyInviteAccepted, &g.ID)
	m.hubs.GameStarted(g.ID)
	return nil
}

// DeclineInvitation removes an invited game. The host is told over their
// socket if they are waiting in the game's hub, and by notification either
// way.
func (m *Matchmaker) DeclineInvitation(ctx context.Context, user *models.User, g *models.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g.State() != models.GameInvited || *g.InvitedID != user.ID {
		return kerrors.New(kerrors.NotInvited)
	}
	if err := m.store.DeleteGame(ctx, g.ID); err != nil {
		return err
	}
	m.hubs.GameCancelled(g.ID, models.DisconnectInviteDeclined)
	m.notify.Push(ctx, g.HostID, models.NotifyInviteDeclined, nil)
	return nil
}

func (m *Matchmaker) createGame(ctx context.Context, hostID int64, invitedID *int64, profile models.TimeControl, now time.Time) (*models.Game, error) {
	id, err := m.store.NextGameID(ctx)
	if err != nil {
		return nil, err
	}
	g := &models.Game{
		ID:          id,
		TimeControl: profile,
		HostID:      hostID,
		InvitedID:   invitedID,
		OpenedAt:    now,
	}
	engine.InitGame(g)
	if err := m.store.InsertGame(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}
