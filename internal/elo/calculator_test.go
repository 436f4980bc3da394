package elo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kasupel-server/internal/models"
)

func TestSettleEqualRatings(t *testing.T) {
	c := NewCalculator()

	host, away := c.Settle(1000, 1000, models.WinnerHost)
	assert.Equal(t, 1016, host)
	assert.Equal(t, 984, away)

	host, away = c.Settle(1000, 1000, models.WinnerAway)
	assert.Equal(t, 984, host)
	assert.Equal(t, 1016, away)

	// A draw between equals moves nobody.
	host, away = c.Settle(1000, 1000, models.WinnerDraw)
	assert.Equal(t, 1000, host)
	assert.Equal(t, 1000, away)
}

func TestSettleFavouriteGainsLess(t *testing.T) {
	c := NewCalculator()

	host, away := c.Settle(1400, 1000, models.WinnerHost)
	assert.Less(t, host-1400, 16)
	assert.Equal(t, host-1400, 1000-away)

	// An upset pays out more than an expected win.
	host, away = c.Settle(1400, 1000, models.WinnerAway)
	assert.Greater(t, away-1000, 16)
	assert.Equal(t, 1400-host, away-1000)
}

func TestSettleDrawMovesTowardsEachOther(t *testing.T) {
	c := NewCalculator()
	host, away := c.Settle(1400, 1000, models.WinnerDraw)
	assert.Less(t, host, 1400)
	assert.Greater(t, away, 1000)
}

func TestSettleUndecidedChangesNothing(t *testing.T) {
	c := NewCalculator()
	host, away := c.Settle(1234, 987, models.WinnerNone)
	assert.Equal(t, 1234, host)
	assert.Equal(t, 987, away)
}
