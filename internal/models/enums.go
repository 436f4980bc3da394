package models

// Enums are sent over the wire as their integer values. The values are part
// of the public API and must not be renumbered.

// Mode identifies the game type. Only chess is defined.
type Mode int

const (
	ModeChess Mode = 1
)

// Valid reports whether the mode is a defined game type.
func (m Mode) Valid() bool {
	return m == ModeChess
}

// Side identifies one of the two seats in a game.
type Side int

const (
	SideHost Side = 1
	SideAway Side = 2
)

// Opponent returns the other seat.
func (s Side) Opponent() Side {
	if s == SideHost {
		return SideAway
	}
	return SideHost
}

func (s Side) Valid() bool {
	return s == SideHost || s == SideAway
}

// Winner records the outcome of a game.
type Winner int

const (
	WinnerNone Winner = 1
	WinnerHost Winner = 2
	WinnerAway Winner = 3
	WinnerDraw Winner = 4
)

// WinnerFromSide converts a winning seat to its Winner value.
func WinnerFromSide(s Side) Winner {
	if s == SideHost {
		return WinnerHost
	}
	return WinnerAway
}

// Conclusion records how a game ended.
type Conclusion int

const (
	ConclusionNone                Conclusion = 1
	ConclusionCheckmate           Conclusion = 2
	ConclusionResignation         Conclusion = 3
	ConclusionOutOfTime           Conclusion = 4
	ConclusionStalemate           Conclusion = 5
	ConclusionThreefoldRepetition Conclusion = 6
	ConclusionFiftyMoveRule       Conclusion = 7
	ConclusionAgreedDraw          Conclusion = 8
)

// IsDrawClaim reports whether the conclusion is one a player may claim.
func (c Conclusion) IsDrawClaim() bool {
	switch c {
	case ConclusionAgreedDraw, ConclusionThreefoldRepetition, ConclusionFiftyMoveRule:
		return true
	}
	return false
}

// DisconnectReason is sent with a game_disconnect event before the server
// closes a socket.
type DisconnectReason int

const (
	DisconnectInviteDeclined DisconnectReason = 1
	DisconnectNewConnection  DisconnectReason = 2
	DisconnectGameOver       DisconnectReason = 3
)
