package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasupel-server/internal/chess"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

type memStore struct {
	saves int
	last  *models.Game
}

func (s *memStore) SaveGame(ctx context.Context, g *models.Game) error {
	s.saves++
	s.last = g
	return nil
}

type memUsers struct {
	elos    map[int64]int
	updated map[int64]int
}

func newMemUsers(elos map[int64]int) *memUsers {
	return &memUsers{elos: elos, updated: make(map[int64]int)}
}

func (u *memUsers) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id, Elo: u.elos[id]}, nil
}

func (u *memUsers) UpdateElo(ctx context.Context, id int64, elo int) error {
	u.updated[id] = elo
	return nil
}

type push struct {
	userID   int64
	typeCode string
	gameID   *int64
}

type memNotifier struct {
	pushes []push
}

func (n *memNotifier) Push(ctx context.Context, userID int64, typeCode string, gameID *int64) {
	n.pushes = append(n.pushes, push{userID, typeCode, gameID})
}

func (n *memNotifier) codesFor(userID int64) []string {
	var out []string
	for _, p := range n.pushes {
		if p.userID == userID {
			out = append(out, p.typeCode)
		}
	}
	return out
}

const (
	hostID int64 = 10
	awayID int64 = 20
)

type fixture struct {
	engine *Engine
	game   *models.Game
	store  *memStore
	users  *memUsers
	notify *memNotifier
	start  time.Time
}

func newFixture(t *testing.T, tc models.TimeControl) *fixture {
	t.Helper()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	away := awayID
	g := &models.Game{
		ID:          1,
		TimeControl: tc,
		HostID:      hostID,
		AwayID:      &away,
		OpenedAt:    start,
		StartedAt:   &start,
		LastTurn:    &start,
	}
	InitGame(g)
	store := &memStore{}
	users := newMemUsers(map[int64]int{hostID: 1000, awayID: 1000})
	notify := &memNotifier{}
	eng, err := New(g, store, users, notify)
	require.NoError(t, err)
	return &fixture{engine: eng, game: g, store: store, users: users, notify: notify, start: start}
}

func standardControl() models.TimeControl {
	return models.TimeControl{Mode: models.ModeChess, MainThinkingTime: 600, FixedExtraTime: 0, TimeIncrementPerTurn: 5}
}

func (f *fixture) move(t *testing.T, side models.Side, mv chess.Move, at time.Time) *MovePayload {
	t.Helper()
	ack, err := f.engine.Move(context.Background(), side, mv, at)
	require.NoError(t, err)
	return ack
}

func TestInitGame(t *testing.T) {
	f := newFixture(t, models.TimeControl{Mode: models.ModeChess, MainThinkingTime: 300, FixedExtraTime: 30, TimeIncrementPerTurn: 2})
	assert.Equal(t, 330, f.game.HostTime, "fixed extra time folds into the starting clock")
	assert.Equal(t, 330, f.game.AwayTime)
	assert.Equal(t, models.SideHost, f.game.CurrentTurn)
	assert.Equal(t, 0, f.game.TurnNumber)
	assert.Len(t, f.game.PositionHistory, 1)
	assert.Equal(t, models.WinnerNone, f.game.Winner)
}

func TestMoveRotatesTurnAndChargesClock(t *testing.T) {
	f := newFixture(t, standardControl())

	ack := f.move(t, models.SideHost, chess.Move{StartRank: 1, StartFile: 4, EndRank: 3, EndFile: 4}, f.start.Add(10*time.Second))

	assert.Equal(t, 595, f.game.HostTime, "600 - 10 elapsed + 5 increment")
	assert.Equal(t, 600, f.game.AwayTime)
	assert.Equal(t, models.SideAway, f.game.CurrentTurn)
	assert.Equal(t, 1, f.game.TurnNumber)
	assert.Equal(t, f.start.Add(10*time.Second), *f.game.LastTurn)
	assert.Len(t, f.game.PositionHistory, 2)
	assert.Equal(t, 1, f.store.saves)
	assert.Equal(t, 595, ack.GameState.HostTime)
	assert.Len(t, ack.AllowedMoves.Moves, 20, "the payload carries the opponent's replies")
}

func TestMoveRejectsOutOfTurnAndIllegal(t *testing.T) {
	f := newFixture(t, standardControl())
	ctx := context.Background()

	_, err := f.engine.Move(ctx, models.SideAway, chess.Move{StartRank: 6, StartFile: 4, EndRank: 4, EndFile: 4}, f.start)
	assert.True(t, kerrors.Is(err, kerrors.NotYourTurn))

	_, err = f.engine.Move(ctx, models.SideHost, chess.Move{StartRank: 0, StartFile: 0, EndRank: 4, EndFile: 4}, f.start)
	assert.True(t, kerrors.Is(err, kerrors.InvalidMove))
	assert.Equal(t, 0, f.store.saves, "rejected moves persist nothing")
}

func TestCheckmateEndsGameAndSettlesRatings(t *testing.T) {
	f := newFixture(t, standardControl())
	at := f.start

	plies := []struct {
		side models.Side
		mv   chess.Move
	}{
		{models.SideHost, chess.Move{StartRank: 1, StartFile: 4, EndRank: 3, EndFile: 4}},
		{models.SideAway, chess.Move{StartRank: 6, StartFile: 4, EndRank: 4, EndFile: 4}},
		{models.SideHost, chess.Move{StartRank: 0, StartFile: 5, EndRank: 3, EndFile: 2}},
		{models.SideAway, chess.Move{StartRank: 7, StartFile: 1, EndRank: 5, EndFile: 2}},
		{models.SideHost, chess.Move{StartRank: 0, StartFile: 3, EndRank: 4, EndFile: 7}},
		{models.SideAway, chess.Move{StartRank: 7, StartFile: 6, EndRank: 5, EndFile: 5}},
		{models.SideHost, chess.Move{StartRank: 4, StartFile: 7, EndRank: 6, EndFile: 5}},
	}
	for _, p := range plies {
		at = at.Add(time.Second)
		f.move(t, p.side, p.mv, at)
	}

	assert.Equal(t, models.GameFinished, f.game.State())
	assert.Equal(t, models.WinnerHost, f.game.Winner)
	assert.Equal(t, models.ConclusionCheckmate, f.game.Conclusion)
	assert.Equal(t, at, *f.game.EndedAt)

	assert.Equal(t, 1016, f.users.updated[hostID])
	assert.Equal(t, 984, f.users.updated[awayID])

	assert.Contains(t, f.notify.codesFor(hostID), models.NotifyWinCheckmate)
	assert.Contains(t, f.notify.codesFor(awayID), models.NotifyLossCheckmate)

	// The game is immutable once finished.
	_, err := f.engine.Move(context.Background(), models.SideAway, chess.Move{StartRank: 6, StartFile: 0, EndRank: 5, EndFile: 0}, at)
	assert.True(t, kerrors.Is(err, kerrors.GameNotInProgress))
	assert.True(t, kerrors.Is(f.engine.Resign(context.Background(), models.SideAway, at), kerrors.GameNotInProgress))
}

func TestMoveAfterExhaustionEndsOnTime(t *testing.T) {
	f := newFixture(t, models.TimeControl{Mode: models.ModeChess, MainThinkingTime: 60})

	_, err := f.engine.Move(context.Background(), models.SideHost,
		chess.Move{StartRank: 1, StartFile: 4, EndRank: 3, EndFile: 4}, f.start.Add(61*time.Second))
	assert.True(t, kerrors.Is(err, kerrors.GameNotInProgress))

	assert.Equal(t, models.WinnerAway, f.game.Winner)
	assert.Equal(t, models.ConclusionOutOfTime, f.game.Conclusion)
	assert.Equal(t, 0, f.game.HostTime)
	// ended_at is pinned to the instant the clock ran out.
	assert.Equal(t, f.start.Add(60*time.Second), *f.game.EndedAt)
	assert.Contains(t, f.notify.codesFor(awayID), models.NotifyWinTime)
	assert.Contains(t, f.notify.codesFor(hostID), models.NotifyLossTime)
}

func TestAssertTimeout(t *testing.T) {
	f := newFixture(t, models.TimeControl{Mode: models.ModeChess, MainThinkingTime: 60})
	ctx := context.Background()

	// Exactly on the boundary is still in time.
	err := f.engine.AssertTimeout(ctx, f.start.Add(60*time.Second))
	assert.True(t, kerrors.Is(err, kerrors.NotTimedOut))

	require.NoError(t, f.engine.AssertTimeout(ctx, f.start.Add(61*time.Second)))
	assert.Equal(t, models.WinnerAway, f.game.Winner)
	assert.Equal(t, models.ConclusionOutOfTime, f.game.Conclusion)

	err = f.engine.AssertTimeout(ctx, f.start.Add(62*time.Second))
	assert.True(t, kerrors.Is(err, kerrors.GameNotInProgress))
}

func TestResign(t *testing.T) {
	f := newFixture(t, standardControl())
	at := f.start.Add(30 * time.Second)

	require.NoError(t, f.engine.Resign(context.Background(), models.SideHost, at))
	assert.Equal(t, models.WinnerAway, f.game.Winner)
	assert.Equal(t, models.ConclusionResignation, f.game.Conclusion)
	assert.Equal(t, at, *f.game.EndedAt)
	assert.Contains(t, f.notify.codesFor(awayID), models.NotifyWinResign)
	assert.Contains(t, f.notify.codesFor(hostID), models.NotifyLossResign)
}

func TestAgreedDraw(t *testing.T) {
	f := newFixture(t, standardControl())
	ctx := context.Background()

	// A claim without an open offer is rejected.
	err := f.engine.ClaimDraw(ctx, models.SideAway, models.ConclusionAgreedDraw, f.start)
	assert.True(t, kerrors.Is(err, kerrors.DrawNotAvailable))

	require.NoError(t, f.engine.OfferDraw(ctx, models.SideHost))
	assert.True(t, f.game.HostOfferingDraw)
	// Re-offering is rejected.
	err = f.engine.OfferDraw(ctx, models.SideHost)
	assert.True(t, kerrors.Is(err, kerrors.DrawNotAvailable))

	// The opponent sees the claim in their allowed moves.
	payload := f.engine.AllowedMoves(models.SideAway)
	require.NotNil(t, payload.DrawClaim)
	assert.Equal(t, models.ConclusionAgreedDraw, *payload.DrawClaim)

	require.NoError(t, f.engine.ClaimDraw(ctx, models.SideAway, models.ConclusionAgreedDraw, f.start))
	assert.Equal(t, models.WinnerDraw, f.game.Winner)
	assert.Equal(t, models.ConclusionAgreedDraw, f.game.Conclusion)
	assert.Equal(t, f.notify.codesFor(hostID), f.notify.codesFor(awayID))
	assert.Contains(t, f.notify.codesFor(hostID), models.NotifyDrawAgreed)
}

func TestMoveRescindsDrawOffer(t *testing.T) {
	f := newFixture(t, standardControl())
	ctx := context.Background()

	require.NoError(t, f.engine.OfferDraw(ctx, models.SideAway))
	f.move(t, models.SideHost, chess.Move{StartRank: 1, StartFile: 4, EndRank: 3, EndFile: 4}, f.start.Add(time.Second))

	assert.False(t, f.game.AwayOfferingDraw)
	err := f.engine.ClaimDraw(ctx, models.SideHost, models.ConclusionAgreedDraw, f.start.Add(2*time.Second))
	assert.True(t, kerrors.Is(err, kerrors.DrawNotAvailable))
}

func TestClaimDrawRejectsNonClaimReasons(t *testing.T) {
	f := newFixture(t, standardControl())
	for _, reason := range []models.Conclusion{
		models.ConclusionCheckmate,
		models.ConclusionResignation,
		models.ConclusionOutOfTime,
		models.ConclusionStalemate,
	} {
		err := f.engine.ClaimDraw(context.Background(), models.SideHost, reason, f.start)
		assert.True(t, kerrors.Is(err, kerrors.NotADrawReason), "reason %d", reason)
	}
}

// knightShuffle plays host and away knights out and back once, four plies.
func (f *fixture) knightShuffle(t *testing.T, at *time.Time) {
	t.Helper()
	plies := []struct {
		side models.Side
		mv   chess.Move
	}{
		{models.SideHost, chess.Move{StartRank: 0, StartFile: 6, EndRank: 2, EndFile: 5}},
		{models.SideAway, chess.Move{StartRank: 7, StartFile: 6, EndRank: 5, EndFile: 5}},
		{models.SideHost, chess.Move{StartRank: 2, StartFile: 5, EndRank: 0, EndFile: 6}},
		{models.SideAway, chess.Move{StartRank: 5, StartFile: 5, EndRank: 7, EndFile: 6}},
	}
	for _, p := range plies {
		*at = at.Add(time.Second)
		f.move(t, p.side, p.mv, *at)
	}
}

func TestThreefoldRepetitionClaim(t *testing.T) {
	f := newFixture(t, standardControl())
	ctx := context.Background()
	at := f.start

	f.knightShuffle(t, &at)
	// Two occurrences so far: the claim is premature.
	err := f.engine.ClaimDraw(ctx, models.SideHost, models.ConclusionThreefoldRepetition, at)
	assert.True(t, kerrors.Is(err, kerrors.DrawNotAvailable))
	assert.Equal(t, models.ConclusionNone, f.game.ValidDrawClaim)

	f.knightShuffle(t, &at)
	assert.Equal(t, models.ConclusionThreefoldRepetition, f.game.ValidDrawClaim)
	payload := f.engine.AllowedMoves(models.SideHost)
	require.NotNil(t, payload.DrawClaim)
	assert.Equal(t, models.ConclusionThreefoldRepetition, *payload.DrawClaim)

	require.NoError(t, f.engine.ClaimDraw(ctx, models.SideHost, models.ConclusionThreefoldRepetition, at))
	assert.Equal(t, models.WinnerDraw, f.game.Winner)
	assert.Equal(t, models.ConclusionThreefoldRepetition, f.game.Conclusion)
	assert.Contains(t, f.notify.codesFor(hostID), models.NotifyDrawThreefold)
}

func TestFiftyMoveClaim(t *testing.T) {
	f := newFixture(t, standardControl())
	f.game.HalfmoveClock = 99
	err := f.engine.ClaimDraw(context.Background(), models.SideHost, models.ConclusionFiftyMoveRule, f.start)
	assert.True(t, kerrors.Is(err, kerrors.DrawNotAvailable))

	f.game.HalfmoveClock = 100
	require.NoError(t, f.engine.ClaimDraw(context.Background(), models.SideHost, models.ConclusionFiftyMoveRule, f.start))
	assert.Equal(t, models.ConclusionFiftyMoveRule, f.game.Conclusion)
}

func TestOpponentNotifiedWhenDisconnected(t *testing.T) {
	f := newFixture(t, standardControl())
	// The default emitter reports nobody connected, so the turn change
	// produces a notification for the opponent.
	f.move(t, models.SideHost, chess.Move{StartRank: 1, StartFile: 4, EndRank: 3, EndFile: 4}, f.start.Add(time.Second))
	assert.Contains(t, f.notify.codesFor(awayID), models.NotifyYourTurn)
}
