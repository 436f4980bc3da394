// Package engine implements the per-game state machine: turn alternation,
// move validation, clock accounting, draw claims, resignation, timeout and
// rating settlement. An Engine owns exactly one live game; its commands are
// serialised by the game's hub, so no locking happens here.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"kasupel-server/internal/chess"
	"kasupel-server/internal/elo"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
	"kasupel-server/internal/timing"
)

// Event names emitted to sockets.
const (
	EventGameState      = "game_state"
	EventAllowedMoves   = "allowed_moves"
	EventMove           = "move"
	EventDrawOffer      = "draw_offer"
	EventGameStart      = "game_start"
	EventGameEnd        = "game_end"
	EventNotification   = "notification"
	EventGameDisconnect = "game_disconnect"
)

// GameStore persists game snapshots. The in-memory engine state is the
// authority while the game is live; the snapshot is the source of truth
// across restarts.
type GameStore interface {
	SaveGame(ctx context.Context, g *models.Game) error
}

// UserStore reads and settles player ratings.
type UserStore interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateElo(ctx context.Context, id int64, elo int) error
}

// Notifier enqueues a notification for a user, delivering it live when they
// have an open socket.
type Notifier interface {
	Push(ctx context.Context, userID int64, typeCode string, gameID *int64)
}

// Emitter fans events out to the game's connected sockets. Implementations
// must tolerate a seat with no socket.
type Emitter interface {
	EmitToSide(side models.Side, event string, payload any)
	EmitToBoth(event string, payload any)
	DisconnectAll(reason models.DisconnectReason)
	SideConnected(side models.Side) bool
}

// noopEmitter lets an engine run before any socket has attached.
type noopEmitter struct{}

func (noopEmitter) EmitToSide(models.Side, string, any)   {}
func (noopEmitter) EmitToBoth(string, any)                {}
func (noopEmitter) DisconnectAll(models.DisconnectReason) {}
func (noopEmitter) SideConnected(models.Side) bool        { return false }

// GameStatePayload is the game_state event body.
type GameStatePayload struct {
	Board       map[string][2]int `json:"board"`
	HostTime    int               `json:"host_time"`
	AwayTime    int               `json:"away_time"`
	LastTurn    *int64            `json:"last_turn"`
	CurrentTurn models.Side       `json:"current_turn"`
	TurnNumber  int               `json:"turn_number"`
}

// AllowedMovesPayload is the allowed_moves event body. DrawClaim, when
// present, is the conclusion the requester could claim right now.
type AllowedMovesPayload struct {
	Moves     []chess.Move       `json:"moves"`
	DrawClaim *models.Conclusion `json:"draw_claim,omitempty"`
}

// MovePayload is the move event body sent to the opponent of an accepted
// move, and the acknowledgement returned to the mover.
type MovePayload struct {
	Move         chess.Move          `json:"move"`
	GameState    GameStatePayload    `json:"game_state"`
	AllowedMoves AllowedMovesPayload `json:"allowed_moves"`
}

// GameEndPayload is the game_end event body.
type GameEndPayload struct {
	GameState GameStatePayload  `json:"game_state"`
	Winner    models.Winner     `json:"winner"`
	Reason    models.Conclusion `json:"reason"`
}

// Engine drives one game.
type Engine struct {
	game    *models.Game
	board   *chess.Board
	store   GameStore
	users   UserStore
	notify  Notifier
	ratings *elo.Calculator
	emitter Emitter
}

// New restores an engine from a game snapshot. The game must have its board
// state initialised (InitGame does this at creation).
func New(game *models.Game, store GameStore, users UserStore, notify Notifier) (*Engine, error) {
	board, err := chess.Parse(game.BoardState)
	if err != nil {
		return nil, fmt.Errorf("restoring board for game %d: %w", game.ID, err)
	}
	return &Engine{
		game:    game,
		board:   board,
		store:   store,
		users:   users,
		notify:  notify,
		ratings: elo.NewCalculator(),
		emitter: noopEmitter{},
	}, nil
}

// InitGame fills a freshly created game row with the initial position and
// clocks. position_history[0] is the starting fingerprint.
func InitGame(g *models.Game) {
	board := chess.NewBoard()
	g.BoardState = board.Serialize()
	g.PositionHistory = []string{board.Fingerprint()}
	g.HostTime = g.InitialTime()
	g.AwayTime = g.InitialTime()
	g.CurrentTurn = models.SideHost
	g.TurnNumber = 0
	g.Winner = models.WinnerNone
	g.Conclusion = models.ConclusionNone
	g.ValidDrawClaim = models.ConclusionNone
}

// SetEmitter attaches the socket fan-out. Passing nil detaches it.
func (e *Engine) SetEmitter(em Emitter) {
	if em == nil {
		e.emitter = noopEmitter{}
		return
	}
	e.emitter = em
}

// Game returns the engine's game row. Callers outside the hub dispatcher
// must treat it as read-only.
func (e *Engine) Game() *models.Game {
	return e.game
}

// GameState renders the current position and clocks.
func (e *Engine) GameState() GameStatePayload {
	var lastTurn *int64
	if e.game.LastTurn != nil {
		u := e.game.LastTurn.Unix()
		lastTurn = &u
	}
	return GameStatePayload{
		Board:       e.board.WireMap(),
		HostTime:    e.game.HostTime,
		AwayTime:    e.game.AwayTime,
		LastTurn:    lastTurn,
		CurrentTurn: e.game.CurrentTurn,
		TurnNumber:  e.game.TurnNumber,
	}
}

// AllowedMoves renders the legal moves for a seat, plus any draw claim that
// seat could make right now. The move list is empty when it is not the
// seat's turn.
func (e *Engine) AllowedMoves(side models.Side) AllowedMovesPayload {
	payload := AllowedMovesPayload{
		Moves: e.board.LegalMoves(side),
	}
	if e.game.State() != models.GameStarted {
		return payload
	}
	if e.game.ValidDrawClaim != models.ConclusionNone {
		claim := e.game.ValidDrawClaim
		payload.DrawClaim = &claim
	} else if e.game.OfferingDraw(side.Opponent()) {
		claim := models.ConclusionAgreedDraw
		payload.DrawClaim = &claim
	}
	return payload
}

// Move processes a move command from a seat. On success it returns the
// acknowledgement payload for the mover; the opponent receives the same
// payload as a move event.
func (e *Engine) Move(ctx context.Context, side models.Side, mv chess.Move, now time.Time) (*MovePayload, error) {
	if e.game.State() != models.GameStarted {
		return nil, kerrors.New(kerrors.GameNotInProgress)
	}
	if side != e.game.CurrentTurn {
		return nil, kerrors.New(kerrors.NotYourTurn)
	}
	remaining, timedOut := e.checkClock(now)
	if timedOut {
		e.endOnTime(ctx)
		return nil, kerrors.New(kerrors.GameNotInProgress)
	}
	if !e.board.Validate(mv, side) {
		return nil, kerrors.New(kerrors.InvalidMove)
	}

	reversible := e.board.IsReversible(mv)
	e.board = e.board.Apply(mv)
	e.game.BoardState = e.board.Serialize()
	e.game.PositionHistory = append(e.game.PositionHistory, e.board.Fingerprint())
	if reversible {
		e.game.HalfmoveClock++
	} else {
		e.game.HalfmoveClock = 0
	}

	e.game.SetTimeFor(side, timing.CreditIncrement(remaining, e.game.TimeIncrementPerTurn))

	// Any accepted move rescinds pending draw offers from either side.
	e.game.HostOfferingDraw = false
	e.game.AwayOfferingDraw = false

	e.game.TurnNumber++
	e.game.CurrentTurn = side.Opponent()
	turnEnd := now
	e.game.LastTurn = &turnEnd

	switch e.board.Terminal() {
	case chess.OutcomeCheckmate:
		e.endGame(ctx, models.WinnerFromSide(side), models.ConclusionCheckmate, now)
	case chess.OutcomeStalemate:
		e.endGame(ctx, models.WinnerDraw, models.ConclusionStalemate, now)
	default:
		e.game.ValidDrawClaim = e.availableClaim()
		e.persist(ctx)
		opponent := side.Opponent()
		payload := MovePayload{
			Move:         mv,
			GameState:    e.GameState(),
			AllowedMoves: e.AllowedMoves(opponent),
		}
		e.emitter.EmitToSide(opponent, EventMove, payload)
		if !e.emitter.SideConnected(opponent) {
			e.notify.Push(ctx, e.game.PlayerID(opponent), models.NotifyYourTurn, &e.game.ID)
		}
	}

	ack := MovePayload{
		Move:         mv,
		GameState:    e.GameState(),
		AllowedMoves: e.AllowedMoves(side.Opponent()),
	}
	return &ack, nil
}

// availableClaim inspects the position after a move for claims that do not
// need the opponent's consent.
func (e *Engine) availableClaim() models.Conclusion {
	if e.repetitions() >= 3 {
		return models.ConclusionThreefoldRepetition
	}
	if e.game.HalfmoveClock >= 100 {
		return models.ConclusionFiftyMoveRule
	}
	return models.ConclusionNone
}

// repetitions counts how many times the current position has occurred.
func (e *Engine) repetitions() int {
	history := e.game.PositionHistory
	if len(history) == 0 {
		return 0
	}
	current := history[len(history)-1]
	count := 0
	for _, fp := range history {
		if fp == current {
			count++
		}
	}
	return count
}

// OfferDraw records a seat's draw offer and relays it to the opponent.
func (e *Engine) OfferDraw(ctx context.Context, side models.Side) error {
	if e.game.State() != models.GameStarted {
		return kerrors.New(kerrors.GameNotInProgress)
	}
	if e.game.OfferingDraw(side) {
		return kerrors.New(kerrors.DrawNotAvailable)
	}
	e.game.SetOfferingDraw(side, true)
	e.persist(ctx)

	opponent := side.Opponent()
	e.emitter.EmitToSide(opponent, EventDrawOffer, struct{}{})
	if !e.emitter.SideConnected(opponent) {
		e.notify.Push(ctx, e.game.PlayerID(opponent), models.NotifyDrawOffer, &e.game.ID)
	}
	return nil
}

// ClaimDraw evaluates a draw claim. Agreed draws need the opponent's open
// offer; repetition and fifty-move claims need the position to qualify.
func (e *Engine) ClaimDraw(ctx context.Context, side models.Side, reason models.Conclusion, now time.Time) error {
	if e.game.State() != models.GameStarted {
		return kerrors.New(kerrors.GameNotInProgress)
	}
	if !reason.IsDrawClaim() {
		return kerrors.New(kerrors.NotADrawReason)
	}
	if _, timedOut := e.checkClock(now); timedOut {
		e.endOnTime(ctx)
		return kerrors.New(kerrors.GameNotInProgress)
	}
	switch reason {
	case models.ConclusionAgreedDraw:
		if !e.game.OfferingDraw(side.Opponent()) {
			return kerrors.New(kerrors.DrawNotAvailable)
		}
	case models.ConclusionThreefoldRepetition:
		if e.repetitions() < 3 {
			return kerrors.New(kerrors.DrawNotAvailable)
		}
	case models.ConclusionFiftyMoveRule:
		if e.game.HalfmoveClock < 100 {
			return kerrors.New(kerrors.DrawNotAvailable)
		}
	}
	e.endGame(ctx, models.WinnerDraw, reason, now)
	return nil
}

// Resign ends the game against the resigning seat.
func (e *Engine) Resign(ctx context.Context, side models.Side, now time.Time) error {
	if e.game.State() != models.GameStarted {
		return kerrors.New(kerrors.GameNotInProgress)
	}
	e.endGame(ctx, models.WinnerFromSide(side.Opponent()), models.ConclusionResignation, now)
	return nil
}

// AssertTimeout checks whether the side to move has exhausted their clock
// and, if so, ends the game. Used both for client timeout events and the
// background sweep.
func (e *Engine) AssertTimeout(ctx context.Context, now time.Time) error {
	if e.game.State() != models.GameStarted {
		return kerrors.New(kerrors.GameNotInProgress)
	}
	if _, timedOut := e.checkClock(now); !timedOut {
		return kerrors.New(kerrors.NotTimedOut)
	}
	e.endOnTime(ctx)
	return nil
}

// checkClock returns the side to move's remaining time as of now, and
// whether they have run out. Landing on exactly zero is still in time.
func (e *Engine) checkClock(now time.Time) (remaining int, timedOut bool) {
	side := e.game.CurrentTurn
	elapsed := 0
	if e.game.LastTurn != nil {
		elapsed = timing.Elapsed(*e.game.LastTurn, now)
	}
	remaining = timing.Deduct(e.game.TimeFor(side), elapsed)
	return remaining, timing.TimedOut(remaining)
}

// endOnTime ends the game against the side to move, pinning ended_at to the
// instant their clock actually ran out rather than when we noticed.
func (e *Engine) endOnTime(ctx context.Context) {
	side := e.game.CurrentTurn
	at := time.Now()
	if e.game.LastTurn != nil {
		at = timing.Exhaustion(*e.game.LastTurn, e.game.TimeFor(side))
	}
	e.game.SetTimeFor(side, 0)
	e.endGame(ctx, models.WinnerFromSide(side.Opponent()), models.ConclusionOutOfTime, at)
}

// endGame finalises the game: outcome fields, rating settlement, result
// notifications, the game_end broadcast and socket teardown.
func (e *Engine) endGame(ctx context.Context, winner models.Winner, conclusion models.Conclusion, at time.Time) {
	e.game.Winner = winner
	e.game.Conclusion = conclusion
	ended := at
	e.game.EndedAt = &ended
	e.game.HostOfferingDraw = false
	e.game.AwayOfferingDraw = false
	e.game.ValidDrawClaim = models.ConclusionNone

	e.settleRatings(ctx)
	e.persist(ctx)

	hostCode, awayCode := models.ResultNotifications(winner, conclusion)
	e.notify.Push(ctx, e.game.HostID, hostCode, &e.game.ID)
	if e.game.AwayID != nil {
		e.notify.Push(ctx, *e.game.AwayID, awayCode, &e.game.ID)
	}

	e.emitter.EmitToBoth(EventGameEnd, GameEndPayload{
		GameState: e.GameState(),
		Winner:    winner,
		Reason:    conclusion,
	})
	e.emitter.DisconnectAll(models.DisconnectGameOver)
}

func (e *Engine) settleRatings(ctx context.Context) {
	if e.game.AwayID == nil {
		return
	}
	host, err := e.users.UserByID(ctx, e.game.HostID)
	if err != nil {
		log.Printf("Engine %d: loading host for rating settlement: %v", e.game.ID, err)
		return
	}
	away, err := e.users.UserByID(ctx, *e.game.AwayID)
	if err != nil {
		log.Printf("Engine %d: loading away for rating settlement: %v", e.game.ID, err)
		return
	}
	newHost, newAway := e.ratings.Settle(host.Elo, away.Elo, e.game.Winner)
	if err := e.users.UpdateElo(ctx, host.ID, newHost); err != nil {
		log.Printf("Engine %d: updating host rating: %v", e.game.ID, err)
	}
	if err := e.users.UpdateElo(ctx, away.ID, newAway); err != nil {
		log.Printf("Engine %d: updating away rating: %v", e.game.ID, err)
	}
}

func (e *Engine) persist(ctx context.Context) {
	if err := e.store.SaveGame(ctx, e.game); err != nil {
		// The in-memory state stays authoritative; clients resync via
		// game_state on reconnect if a crash loses this write.
		log.Printf("Engine %d: persisting game: %v", e.game.ID, err)
	}
}
