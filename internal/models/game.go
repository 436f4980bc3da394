package models

import (
	"time"
)

// TimeControl is the four-field profile a game is played under. All
// durations are whole seconds. Two profiles match for pairing only if every
// field is equal.
type TimeControl struct {
	Mode                 Mode `bson:"mode" json:"mode"`
	MainThinkingTime     int  `bson:"mainThinkingTime" json:"main_thinking_time"`
	FixedExtraTime       int  `bson:"fixedExtraTime" json:"fixed_extra_time"`
	TimeIncrementPerTurn int  `bson:"timeIncrementPerTurn" json:"time_increment_per_turn"`
}

// Valid reports whether the profile can be played: a known mode and
// non-negative times with some main thinking time.
func (tc TimeControl) Valid() bool {
	return tc.Mode.Valid() && tc.MainThinkingTime > 0 &&
		tc.FixedExtraTime >= 0 && tc.TimeIncrementPerTurn >= 0
}

// InitialTime is each player's starting clock in seconds: the fixed extra
// time is baked into the starting total rather than tracked separately.
func (tc TimeControl) InitialTime() int {
	return tc.MainThinkingTime + tc.FixedExtraTime
}

// GameState is the lifecycle phase of a game, derived from its fields.
type GameState int

const (
	GameSearching GameState = iota // open find game awaiting any opponent
	GameInvited                    // awaiting a specific invitee
	GameStarted
	GameFinished
)

// Game is one match between two accounts.
type Game struct {
	ID          int64 `bson:"_id" json:"id"`
	TimeControl `bson:",inline"`

	HostID    int64  `bson:"hostId" json:"host_id"`
	AwayID    *int64 `bson:"awayId,omitempty" json:"away_id,omitempty"`
	InvitedID *int64 `bson:"invitedId,omitempty" json:"invited_id,omitempty"`

	HostTime int `bson:"hostTime" json:"host_time"`
	AwayTime int `bson:"awayTime" json:"away_time"`

	HostOfferingDraw bool `bson:"hostOfferingDraw" json:"host_offering_draw"`
	AwayOfferingDraw bool `bson:"awayOfferingDraw" json:"away_offering_draw"`

	CurrentTurn Side `bson:"currentTurn" json:"current_turn"`
	TurnNumber  int  `bson:"turnNumber" json:"turn_number"`

	BoardState      string   `bson:"boardState" json:"board_state"`
	PositionHistory []string `bson:"positionHistory" json:"position_history"`
	HalfmoveClock   int      `bson:"halfmoveClock" json:"halfmove_clock"`

	// ValidDrawClaim records a repetition or fifty-move claim that became
	// available after the last move, so a claim can be checked without
	// re-running move evaluation.
	ValidDrawClaim Conclusion `bson:"validDrawClaim" json:"valid_draw_claim"`

	Winner     Winner     `bson:"winner" json:"winner"`
	Conclusion Conclusion `bson:"conclusion" json:"conclusion"`

	OpenedAt  time.Time  `bson:"openedAt" json:"opened_at"`
	StartedAt *time.Time `bson:"startedAt,omitempty" json:"started_at,omitempty"`
	LastTurn  *time.Time `bson:"lastTurn,omitempty" json:"last_turn,omitempty"`
	EndedAt   *time.Time `bson:"endedAt,omitempty" json:"ended_at,omitempty"`
}

// State derives the lifecycle phase.
func (g *Game) State() GameState {
	switch {
	case g.EndedAt != nil:
		return GameFinished
	case g.AwayID != nil && g.StartedAt != nil:
		return GameStarted
	case g.InvitedID != nil:
		return GameInvited
	default:
		return GameSearching
	}
}

// SideOf returns the seat a user occupies, if any.
func (g *Game) SideOf(userID int64) (Side, bool) {
	if g.HostID == userID {
		return SideHost, true
	}
	if g.AwayID != nil && *g.AwayID == userID {
		return SideAway, true
	}
	return 0, false
}

// PlayerID returns the user occupying a seat. The away seat is zero while
// the game is pending.
func (g *Game) PlayerID(side Side) int64 {
	if side == SideHost {
		return g.HostID
	}
	if g.AwayID != nil {
		return *g.AwayID
	}
	return 0
}

// TimeFor returns the remaining clock for a seat in seconds.
func (g *Game) TimeFor(side Side) int {
	if side == SideHost {
		return g.HostTime
	}
	return g.AwayTime
}

// SetTimeFor overwrites the remaining clock for a seat.
func (g *Game) SetTimeFor(side Side, seconds int) {
	if side == SideHost {
		g.HostTime = seconds
	} else {
		g.AwayTime = seconds
	}
}

// OfferingDraw reports whether a seat has an open draw offer.
func (g *Game) OfferingDraw(side Side) bool {
	if side == SideHost {
		return g.HostOfferingDraw
	}
	return g.AwayOfferingDraw
}

// SetOfferingDraw sets or clears a seat's draw offer flag.
func (g *Game) SetOfferingDraw(side Side, offering bool) {
	if side == SideHost {
		g.HostOfferingDraw = offering
	} else {
		g.AwayOfferingDraw = offering
	}
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

// GameWire is the public JSON representation of a game. Host, Away and
// Invited are user ids in the referenced flavour and embedded UserWire
// objects in the included flavour; timestamps are unix seconds.
type GameWire struct {
	ID                   int64      `json:"id"`
	Mode                 Mode       `json:"mode"`
	Host                 any        `json:"host"`
	Away                 any        `json:"away"`
	Invited              any        `json:"invited"`
	MainThinkingTime     int        `json:"main_thinking_time"`
	FixedExtraTime       int        `json:"fixed_extra_time"`
	TimeIncrementPerTurn int        `json:"time_increment_per_turn"`
	HostTime             int        `json:"host_time"`
	AwayTime             int        `json:"away_time"`
	HostOfferingDraw     bool       `json:"host_offering_draw"`
	AwayOfferingDraw     bool       `json:"away_offering_draw"`
	CurrentTurn          Side       `json:"current_turn"`
	TurnNumber           int        `json:"turn_number"`
	Winner               Winner     `json:"winner"`
	Conclusion           Conclusion `json:"conclusion"`
	OpenedAt             int64      `json:"opened_at"`
	StartedAt            *int64     `json:"started_at"`
	LastTurn             *int64     `json:"last_turn"`
	EndedAt              *int64     `json:"ended_at"`
}

func (g *Game) wire() GameWire {
	return GameWire{
		ID:                   g.ID,
		Mode:                 g.Mode,
		MainThinkingTime:     g.MainThinkingTime,
		FixedExtraTime:       g.FixedExtraTime,
		TimeIncrementPerTurn: g.TimeIncrementPerTurn,
		HostTime:             g.HostTime,
		AwayTime:             g.AwayTime,
		HostOfferingDraw:     g.HostOfferingDraw,
		AwayOfferingDraw:     g.AwayOfferingDraw,
		CurrentTurn:          g.CurrentTurn,
		TurnNumber:           g.TurnNumber,
		Winner:               g.Winner,
		Conclusion:           g.Conclusion,
		OpenedAt:             g.OpenedAt.Unix(),
		StartedAt:            unixOrNil(g.StartedAt),
		LastTurn:             unixOrNil(g.LastTurn),
		EndedAt:              unixOrNil(g.EndedAt),
	}
}

// WireReferenced renders the game with users as bare ids. Callers send a
// parallel users array containing each referenced user exactly once.
func (g *Game) WireReferenced() GameWire {
	w := g.wire()
	w.Host = g.HostID
	if g.AwayID != nil {
		w.Away = *g.AwayID
	}
	if g.InvitedID != nil {
		w.Invited = *g.InvitedID
	}
	return w
}

// WireIncluded renders the game with users embedded. Nil users render as
// JSON null.
func (g *Game) WireIncluded(host, away, invited *User) GameWire {
	w := g.wire()
	if host != nil {
		w.Host = host.Wire(false)
	}
	if away != nil {
		w.Away = away.Wire(false)
	}
	if invited != nil {
		w.Invited = invited.Wire(false)
	}
	return w
}

// ReferencedUserIDs returns the distinct user ids a referenced wire game
// points at, in host/away/invited order.
func (g *Game) ReferencedUserIDs() []int64 {
	ids := []int64{g.HostID}
	seen := map[int64]bool{g.HostID: true}
	for _, p := range []*int64{g.AwayID, g.InvitedID} {
		if p != nil && !seen[*p] {
			ids = append(ids, *p)
			seen[*p] = true
		}
	}
	return ids
}
