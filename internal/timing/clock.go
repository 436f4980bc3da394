// Package timing implements clock accounting for Fischer-style time
// controls and the background sweep that asserts timeouts for silent
// clients. All arithmetic is in whole seconds; clocks tick only for the
// side to move and are frozen between turns.
package timing

import "time"

// Elapsed converts a wall-clock interval since the last turn to whole
// seconds, truncating partial seconds and clamping negative skew to zero.
func Elapsed(lastTurn, now time.Time) int {
	secs := int(now.Sub(lastTurn) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// Deduct charges elapsed thinking time against a remaining clock. The
// result may be negative, which means the player has run out of time.
func Deduct(remaining, elapsed int) int {
	return remaining - elapsed
}

// CreditIncrement pays the per-turn increment back after an accepted move.
func CreditIncrement(remaining, increment int) int {
	return remaining + increment
}

// TimedOut reports whether a clock has been exhausted. A move that lands on
// exactly zero remaining is still in time.
func TimedOut(remaining int) bool {
	return remaining < 0
}

// Exhaustion returns the instant a clock runs out if its owner never moves.
func Exhaustion(lastTurn time.Time, remaining int) time.Time {
	return lastTurn.Add(time.Duration(remaining) * time.Second)
}
