package timing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasupel-server/internal/models"
)

func TestElapsedTruncatesAndClamps(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Elapsed(base, base))
	assert.Equal(t, 0, Elapsed(base, base.Add(999*time.Millisecond)))
	assert.Equal(t, 1, Elapsed(base, base.Add(1900*time.Millisecond)))
	assert.Equal(t, 60, Elapsed(base, base.Add(time.Minute)))
	// Clock skew never credits time back.
	assert.Equal(t, 0, Elapsed(base, base.Add(-5*time.Second)))
}

func TestDeductAndTimedOut(t *testing.T) {
	assert.Equal(t, 55, Deduct(60, 5))
	assert.Equal(t, 0, Deduct(60, 60))
	assert.Equal(t, -1, Deduct(60, 61))

	// Landing on exactly zero is still in time.
	assert.False(t, TimedOut(0))
	assert.False(t, TimedOut(10))
	assert.True(t, TimedOut(-1))
}

func TestCreditIncrement(t *testing.T) {
	assert.Equal(t, 65, CreditIncrement(60, 5))
	assert.Equal(t, 60, CreditIncrement(60, 0))
}

func TestExhaustion(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(42*time.Second), Exhaustion(base, 42))
}

type fakeLister struct {
	games []*models.Game
}

func (f *fakeLister) StartedGames(ctx context.Context) ([]*models.Game, error) {
	return f.games, nil
}

type fakePoster struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakePoster) PostTimeout(gameID int64) {
	f.mu.Lock()
	f.ids = append(f.ids, gameID)
	f.mu.Unlock()
}

func (f *fakePoster) posted() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ids...)
}

func TestSweepPostsOnlyExhaustedGames(t *testing.T) {
	lastTurn := time.Now().Add(-90 * time.Second)
	fresh := time.Now().Add(-10 * time.Second)
	expired := &models.Game{
		ID:          1,
		TimeControl: models.TimeControl{Mode: models.ModeChess, MainThinkingTime: 60},
		CurrentTurn: models.SideHost,
		HostTime:    60,
		LastTurn:    &lastTurn,
	}
	alive := &models.Game{
		ID:          2,
		TimeControl: models.TimeControl{Mode: models.ModeChess, MainThinkingTime: 60},
		CurrentTurn: models.SideHost,
		HostTime:    60,
		LastTurn:    &fresh,
	}
	pending := &models.Game{ID: 3, CurrentTurn: models.SideHost, HostTime: 60}

	poster := &fakePoster{}
	s := NewSweeper(&fakeLister{games: []*models.Game{expired, alive, pending}}, poster, time.Second)
	s.sweep()

	require.Equal(t, []int64{1}, poster.posted())
}
