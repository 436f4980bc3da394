package models

import "time"

// Notification type codes. The set is closed; clients map codes to display
// text themselves.
const (
	NotifyWelcome = "accounts.welcome"

	NotifyInviteReceived = "matchmaking.invite_received"
	NotifyInviteDeclined = "matchmaking.invite_declined"
	NotifyInviteAccepted = "matchmaking.invite_accepted"
	NotifyMatchFound     = "matchmaking.match_found"

	NotifyYourTurn  = "games.ongoing.turn"
	NotifyDrawOffer = "games.ongoing.draw_offer"

	NotifyWinCheckmate = "games.win.checkmate"
	NotifyWinResign    = "games.win.resign"
	NotifyWinTime      = "games.win.time"

	NotifyLossCheckmate = "games.loss.checkmate"
	NotifyLossResign    = "games.loss.resign"
	NotifyLossTime      = "games.loss.time"

	NotifyDrawStalemate = "games.draw.stalemate"
	NotifyDrawThreefold = "games.draw.threefold_repetition"
	NotifyDrawFiftyMove = "games.draw.fifty_move_rule"
	NotifyDrawAgreed    = "games.draw.agreed"
)

// Notification is a queued message for one user. Notifications are never
// deleted, only marked read.
type Notification struct {
	ID       int64     `bson:"_id" json:"id"`
	UserID   int64     `bson:"userId" json:"-"`
	SentAt   time.Time `bson:"sentAt" json:"-"`
	TypeCode string    `bson:"typeCode" json:"type_code"`
	GameID   *int64    `bson:"gameId,omitempty" json:"game_id"`
	Read     bool      `bson:"read" json:"read"`
}

// NotificationWire is the JSON shape sent to clients.
type NotificationWire struct {
	ID       int64  `json:"id"`
	SentAt   int64  `json:"sent_at"`
	TypeCode string `json:"type_code"`
	GameID   *int64 `json:"game_id"`
	Read     bool   `json:"read"`
}

// Wire converts the notification for API and socket delivery.
func (n *Notification) Wire() NotificationWire {
	return NotificationWire{
		ID:       n.ID,
		SentAt:   n.SentAt.Unix(),
		TypeCode: n.TypeCode,
		GameID:   n.GameID,
		Read:     n.Read,
	}
}

// ResultNotifications returns the type codes for the two seats of a
// finished game, host first. Exactly one result notification is produced
// per player per finished game.
func ResultNotifications(winner Winner, conclusion Conclusion) (host, away string) {
	switch winner {
	case WinnerDraw:
		var code string
		switch conclusion {
		case ConclusionStalemate:
			code = NotifyDrawStalemate
		case ConclusionThreefoldRepetition:
			code = NotifyDrawThreefold
		case ConclusionFiftyMoveRule:
			code = NotifyDrawFiftyMove
		default:
			code = NotifyDrawAgreed
		}
		return code, code
	case WinnerHost:
		win, loss := decidedNotifications(conclusion)
		return win, loss
	default:
		win, loss := decidedNotifications(conclusion)
		return loss, win
	}
}

func decidedNotifications(conclusion Conclusion) (win, loss string) {
	switch conclusion {
	case ConclusionResignation:
		return NotifyWinResign, NotifyLossResign
	case ConclusionOutOfTime:
		return NotifyWinTime, NotifyLossTime
	default:
		return NotifyWinCheckmate, NotifyLossCheckmate
	}
}
