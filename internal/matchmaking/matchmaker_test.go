package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

type memGameStore struct {
	mu       sync.Mutex
	nextID   int64
	games    map[int64]*models.Game
	inserted []*models.Game
	saves    int
}

func newMemGameStore() *memGameStore {
	return &memGameStore{games: make(map[int64]*models.Game)}
}

func (s *memGameStore) NextGameID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *memGameStore) InsertGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *g
	s.inserted = append(s.inserted, &snapshot)
	s.games[g.ID] = g
	return nil
}

func (s *memGameStore) SaveGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.games[g.ID] = g
	return nil
}

func (s *memGameStore) DeleteGame(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
	return nil
}

func (s *memGameStore) SearchingGames(ctx context.Context) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Game
	for _, g := range s.games {
		if g.State() == models.GameSearching {
			out = append(out, g)
		}
	}
	return out, nil
}

type memDirectory struct {
	byName map[string]*models.User
}

func (d *memDirectory) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := d.byName[username]
	if !ok {
		return nil, kerrors.New(kerrors.AccountNotFound)
	}
	return u, nil
}

type notice struct {
	userID   int64
	typeCode string
	gameID   *int64
}

type memNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *memNotifier) Push(ctx context.Context, userID int64, typeCode string, gameID *int64) {
	n.mu.Lock()
	n.notices = append(n.notices, notice{userID, typeCode, gameID})
	n.mu.Unlock()
}

func (n *memNotifier) firstFor(userID int64) (notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, x := range n.notices {
		if x.userID == userID {
			return x, true
		}
	}
	return notice{}, false
}

type memHubs struct {
	mu        sync.Mutex
	started   []int64
	cancelled []int64
}

func (h *memHubs) GameStarted(gameID int64) {
	h.mu.Lock()
	h.started = append(h.started, gameID)
	h.mu.Unlock()
}

func (h *memHubs) GameCancelled(gameID int64, reason models.DisconnectReason) {
	h.mu.Lock()
	h.cancelled = append(h.cancelled, gameID)
	h.mu.Unlock()
}

type world struct {
	m      *Matchmaker
	store  *memGameStore
	notify *memNotifier
	hubs   *memHubs
	alice  *models.User
	bob    *models.User
}

func newWorld() *world {
	alice := &models.User{ID: 1, Username: "alice", EmailVerified: true}
	bob := &models.User{ID: 2, Username: "bob", EmailVerified: true}
	store := newMemGameStore()
	notify := &memNotifier{}
	hubs := &memHubs{}
	dir := &memDirectory{byName: map[string]*models.User{"alice": alice, "bob": bob}}
	return &world{
		m:      New(store, dir, notify, hubs),
		store:  store,
		notify: notify,
		hubs:   hubs,
		alice:  alice,
		bob:    bob,
	}
}

func blitz() models.TimeControl {
	return models.TimeControl{Mode: models.ModeChess, MainThinkingTime: 300, TimeIncrementPerTurn: 2}
}

func TestFindCreatesThenPairs(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	g1, err := w.m.Find(ctx, w.alice, blitz(), now)
	require.NoError(t, err)
	assert.Equal(t, models.GameSearching, g1.State())
	assert.Equal(t, w.alice.ID, g1.HostID)
	assert.NotEmpty(t, g1.BoardState, "the board is set up at creation")

	g2, err := w.m.Find(ctx, w.bob, blitz(), now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g2.ID, "the second finder joins the first's game")
	assert.Equal(t, models.GameStarted, g2.State())
	assert.Equal(t, w.bob.ID, *g2.AwayID)

	n, ok := w.notify.firstFor(w.alice.ID)
	require.True(t, ok)
	assert.Equal(t, models.NotifyMatchFound, n.typeCode)
	require.NotNil(t, n.gameID)
	assert.Equal(t, g1.ID, *n.gameID)
	assert.Equal(t, []int64{g1.ID}, w.hubs.started)
}

func TestFindIsIdempotentForTheHost(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	g1, err := w.m.Find(ctx, w.alice, blitz(), now)
	require.NoError(t, err)
	g2, err := w.m.Find(ctx, w.alice, blitz(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g2.ID)
	assert.Equal(t, models.GameSearching, g2.State())
}

func TestFindMatchesExactProfileOnly(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	g1, err := w.m.Find(ctx, w.alice, blitz(), now)
	require.NoError(t, err)

	other := blitz()
	other.TimeIncrementPerTurn = 3
	g2, err := w.m.Find(ctx, w.bob, other, now)
	require.NoError(t, err)
	assert.NotEqual(t, g1.ID, g2.ID)
	assert.Equal(t, models.GameSearching, g2.State())
}

func TestConcurrentFindsPairExactlyOnce(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	_, err := w.m.Find(ctx, w.alice, blitz(), now)
	require.NoError(t, err)

	users := []*models.User{
		{ID: 3, Username: "carol"},
		{ID: 4, Username: "dave"},
	}
	results := make([]*models.Game, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			g, err := w.m.Find(ctx, u, blitz(), now.Add(time.Second))
			assert.NoError(t, err)
			results[i] = g
		}(i, u)
	}
	wg.Wait()

	started := 0
	for _, g := range results {
		if g != nil && g.State() == models.GameStarted {
			started++
		}
	}
	assert.Equal(t, 1, started, "exactly one finder joins the waiting game")
}

func TestRebuildRestoresPendingIndex(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	g1, err := w.m.Find(ctx, w.alice, blitz(), now)
	require.NoError(t, err)

	// A fresh matchmaker over the same store finds the persisted search.
	m2 := New(w.store, &memDirectory{byName: map[string]*models.User{}}, w.notify, w.hubs)
	require.NoError(t, m2.Rebuild(ctx))
	g2, err := m2.Find(ctx, w.bob, blitz(), now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g2.ID)
	assert.Equal(t, models.GameStarted, g2.State())
}

func TestInvitationAcceptFlow(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	g, err := w.m.SendInvitation(ctx, w.alice, "bob", blitz(), now)
	require.NoError(t, err)
	assert.Equal(t, models.GameInvited, g.State())
	require.NotNil(t, g.InvitedID)
	assert.Equal(t, w.bob.ID, *g.InvitedID)

	n, ok := w.notify.firstFor(w.bob.ID)
	require.True(t, ok)
	assert.Equal(t, models.NotifyInviteReceived, n.typeCode)

	// Only the invitee may accept.
	err = w.m.AcceptInvitation(ctx, w.alice, g, now)
	assert.True(t, kerrors.Is(err, kerrors.NotInvited))

	require.NoError(t, w.m.AcceptInvitation(ctx, w.bob, g, now.Add(time.Second)))
	assert.Equal(t, models.GameStarted, g.State())
	assert.Nil(t, g.InvitedID)
	assert.Equal(t, []int64{g.ID}, w.hubs.started)

	n2, ok := w.notify.firstFor(w.alice.ID)
	require.True(t, ok)
	assert.Equal(t, models.NotifyInviteAccepted, n2.typeCode)
}

func TestInvitationDeclineRemovesGame(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	g, err := w.m.SendInvitation(ctx, w.alice, "bob", blitz(), now)
	require.NoError(t, err)

	require.NoError(t, w.m.DeclineInvitation(ctx, w.bob, g))
	_, exists := w.store.games[g.ID]
	assert.False(t, exists)
	assert.Equal(t, []int64{g.ID}, w.hubs.cancelled)

	n, ok := w.notify.firstFor(w.alice.ID)
	require.True(t, ok)
	assert.Equal(t, models.NotifyInviteDeclined, n.typeCode)
	assert.Nil(t, n.gameID, "the declined game no longer exists")
}

func TestInvitationRowIsWrittenInOneInsert(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	g, err := w.m.SendInvitation(ctx, w.alice, "bob", blitz(), now)
	require.NoError(t, err)

	// The invitee is on the row from the very first write, so no crash
	// window can leave the invite looking like an open search.
	require.Len(t, w.store.inserted, 1)
	require.NotNil(t, w.store.inserted[0].InvitedID)
	assert.Equal(t, w.bob.ID, *w.store.inserted[0].InvitedID)
	assert.Zero(t, w.store.saves)

	// A restarted matchmaker over the same store must not pair a searcher
	// into the invite.
	m2 := New(w.store, &memDirectory{byName: map[string]*models.User{}}, w.notify, w.hubs)
	require.NoError(t, m2.Rebuild(ctx))
	eve := &models.User{ID: 5, Username: "eve"}
	g2, err := m2.Find(ctx, eve, blitz(), now.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, g.ID, g2.ID)
	assert.Equal(t, models.GameSearching, g2.State())
}

func TestCannotInviteSelfOrUnknown(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	now := time.Now()

	_, err := w.m.SendInvitation(ctx, w.alice, "alice", blitz(), now)
	assert.True(t, kerrors.Is(err, kerrors.CannotInviteSelf))

	_, err = w.m.SendInvitation(ctx, w.alice, "nobody", blitz(), now)
	assert.True(t, kerrors.Is(err, kerrors.AccountNotFound))
}
