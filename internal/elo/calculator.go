// Package elo implements the standard Elo rating update applied when a game
// concludes. Resignation and timeout count as full losses.
package elo

import (
	"math"

	"kasupel-server/internal/models"
)

// KFactor scales how far a single result can move a rating.
const KFactor = 32

// Calculator settles ratings for finished games.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// expectedScore is the Elo win probability:
// E = 1 / (1 + 10^((opponent - player) / 400))
func (c *Calculator) expectedScore(playerRating, opponentRating int) float64 {
	exponent := float64(opponentRating-playerRating) / 400.0
	return 1.0 / (1.0 + math.Pow(10, exponent))
}

// newRating applies ΔR = K × (S − E) with round-to-nearest.
func (c *Calculator) newRating(playerRating, opponentRating int, actualScore float64) int {
	change := KFactor * (actualScore - c.expectedScore(playerRating, opponentRating))
	return playerRating + int(math.Round(change))
}

// Settle returns the post-game ratings for both seats. Scores are 1 for a
// win, 0.5 each for a draw and 0 for a loss; each side's change is rounded
// independently so deltas may differ by one point on draws.
func (c *Calculator) Settle(hostRating, awayRating int, winner models.Winner) (newHost, newAway int) {
	var hostScore, awayScore float64
	switch winner {
	case models.WinnerHost:
		hostScore, awayScore = 1, 0
	case models.WinnerAway:
		hostScore, awayScore = 0, 1
	case models.WinnerDraw:
		hostScore, awayScore = 0.5, 0.5
	default:
		return hostRating, awayRating
	}
	return c.newRating(hostRating, awayRating, hostScore),
		c.newRating(awayRating, hostRating, awayScore)
}
