package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGameStateDerivation(t *testing.T) {
	now := time.Now()
	away := int64(2)
	invited := int64(3)

	g := &Game{HostID: 1, OpenedAt: now}
	assert.Equal(t, GameSearching, g.State())

	g.InvitedID = &invited
	assert.Equal(t, GameInvited, g.State())

	g.InvitedID = nil
	g.AwayID = &away
	g.StartedAt = &now
	assert.Equal(t, GameStarted, g.State())

	g.EndedAt = &now
	assert.Equal(t, GameFinished, g.State())
}

func TestSideOf(t *testing.T) {
	away := int64(2)
	g := &Game{HostID: 1, AwayID: &away}

	side, ok := g.SideOf(1)
	assert.True(t, ok)
	assert.Equal(t, SideHost, side)

	side, ok = g.SideOf(2)
	assert.True(t, ok)
	assert.Equal(t, SideAway, side)

	_, ok = g.SideOf(3)
	assert.False(t, ok)

	// No away seat yet.
	g2 := &Game{HostID: 1}
	_, ok = g2.SideOf(2)
	assert.False(t, ok)
}

func TestSideOpponent(t *testing.T) {
	assert.Equal(t, SideAway, SideHost.Opponent())
	assert.Equal(t, SideHost, SideAway.Opponent())
}

func TestTimeControlValid(t *testing.T) {
	good := TimeControl{Mode: ModeChess, MainThinkingTime: 300, TimeIncrementPerTurn: 2}
	assert.True(t, good.Valid())

	bad := good
	bad.Mode = 0
	assert.False(t, bad.Valid())

	bad = good
	bad.MainThinkingTime = 0
	assert.False(t, bad.Valid())

	bad = good
	bad.FixedExtraTime = -1
	assert.False(t, bad.Valid())
}

func TestInitialTimeBakesInFixedExtra(t *testing.T) {
	tc := TimeControl{Mode: ModeChess, MainThinkingTime: 300, FixedExtraTime: 30}
	assert.Equal(t, 330, tc.InitialTime())
}

func TestReferencedUserIDsDeduplicates(t *testing.T) {
	away := int64(2)
	invited := int64(2)
	g := &Game{HostID: 1, AwayID: &away, InvitedID: &invited}
	assert.Equal(t, []int64{1, 2}, g.ReferencedUserIDs())

	solo := &Game{HostID: 1}
	assert.Equal(t, []int64{1}, solo.ReferencedUserIDs())
}

func TestWireReferencedLeavesAbsentSeatsNil(t *testing.T) {
	g := &Game{ID: 5, HostID: 1, OpenedAt: time.Now(), TimeControl: TimeControl{Mode: ModeChess, MainThinkingTime: 60}}
	w := g.WireReferenced()
	assert.Equal(t, int64(1), w.Host)
	assert.Nil(t, w.Away)
	assert.Nil(t, w.Invited)
}

func TestResultNotifications(t *testing.T) {
	cases := []struct {
		winner     Winner
		conclusion Conclusion
		host, away string
	}{
		{WinnerHost, ConclusionCheckmate, NotifyWinCheckmate, NotifyLossCheckmate},
		{WinnerAway, ConclusionCheckmate, NotifyLossCheckmate, NotifyWinCheckmate},
		{WinnerHost, ConclusionResignation, NotifyWinResign, NotifyLossResign},
		{WinnerAway, ConclusionOutOfTime, NotifyLossTime, NotifyWinTime},
		{WinnerDraw, ConclusionStalemate, NotifyDrawStalemate, NotifyDrawStalemate},
		{WinnerDraw, ConclusionThreefoldRepetition, NotifyDrawThreefold, NotifyDrawThreefold},
		{WinnerDraw, ConclusionFiftyMoveRule, NotifyDrawFiftyMove, NotifyDrawFiftyMove},
		{WinnerDraw, ConclusionAgreedDraw, NotifyDrawAgreed, NotifyDrawAgreed},
	}
	for _, c := range cases {
		host, away := ResultNotifications(c.winner, c.conclusion)
		assert.Equal(t, c.host, host, "%v/%v", c.winner, c.conclusion)
		assert.Equal(t, c.away, away, "%v/%v", c.winner, c.conclusion)
	}
}

func TestConclusionIsDrawClaim(t *testing.T) {
	assert.True(t, ConclusionAgreedDraw.IsDrawClaim())
	assert.True(t, ConclusionThreefoldRepetition.IsDrawClaim())
	assert.True(t, ConclusionFiftyMoveRule.IsDrawClaim())
	assert.False(t, ConclusionStalemate.IsDrawClaim())
	assert.False(t, ConclusionCheckmate.IsDrawClaim())
}

func TestUserWireEmailAndAvatar(t *testing.T) {
	avatar := int64(12)
	u := &User{ID: 1, Username: "alice", Email: "a@example.com", AvatarID: &avatar, Elo: 1000, CreatedAt: time.Now()}

	w := u.Wire(false)
	assert.Empty(t, w.Email)
	if assert.NotNil(t, w.AvatarURL) {
		assert.Equal(t, "/media/avatar/12", *w.AvatarURL)
	}

	own := u.Wire(true)
	assert.Equal(t, "a@example.com", own.Email)

	plain := &User{ID: 2, Username: "bob"}
	assert.Nil(t, plain.Wire(false).AvatarURL)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now}
	assert.False(t, s.Expired(now), "expiry is exclusive")
	assert.True(t, s.Expired(now.Add(time.Second)))
}
