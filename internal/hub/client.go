package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"kasupel-server/internal/chess"
	"kasupel-server/internal/engine"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
)

// Client is one participant's socket on one game.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID        int64
	side          models.Side
	sessionExpiry time.Time
}

func newClient(h *Hub, conn *websocket.Conn, userID int64, side models.Side, sessionExpiry time.Time) *Client {
	return &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		userID:        userID,
		side:          side,
		sessionExpiry: sessionExpiry,
	}
}

// trySend queues a frame without ever blocking the caller. A full buffer
// means the socket is stalled; the client resyncs via game_state later.
func (c *Client) trySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) sendEvent(event string, payload any) {
	c.trySend(encodeFrame(event, nil, payload))
}

func (c *Client) close() {
	c.conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Hub %d: socket error for user %d: %v", c.hub.gameID, c.userID, err)
			}
			return
		}
		// An expired session disconnects at the next event boundary.
		if time.Now().After(c.sessionExpiry) {
			c.trySend(errorFrame(nil, kerrors.New(kerrors.SessionNotFound)))
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.trySend(errorFrame(nil, kerrors.New(kerrors.InvalidJSON)))
			continue
		}
		if !c.hub.post(func() { c.handle(frame) }) {
			return
		}
	}
}

// handle runs inside the hub dispatcher, so engine calls here are
// serialised with every other command on this game.
func (c *Client) handle(frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eng := c.hub.Engine()
	now := time.Now()

	switch frame.Event {
	case engine.EventGameState:
		c.trySend(encodeFrame(engine.EventGameState, frame.Seq, eng.GameState()))

	case engine.EventAllowedMoves:
		c.trySend(encodeFrame(engine.EventAllowedMoves, frame.Seq, eng.AllowedMoves(c.side)))

	case engine.EventMove:
		var mv chess.Move
		if err := json.Unmarshal(frame.Data, &mv); err != nil || !mv.InBounds() {
			c.trySend(errorFrame(frame.Seq, kerrors.New(kerrors.InvalidMoveData)))
			return
		}
		ack, err := eng.Move(ctx, c.side, mv, now)
		if err != nil {
			c.trySend(errorFrame(frame.Seq, err))
			return
		}
		c.trySend(encodeFrame(engine.EventMove, frame.Seq, ack))

	case "offer_draw":
		if err := eng.OfferDraw(ctx, c.side); err != nil {
			c.trySend(errorFrame(frame.Seq, err))
			return
		}
		c.trySend(encodeFrame("offer_draw", frame.Seq, struct{}{}))

	case "claim_draw":
		var body struct {
			Reason int `json:"reason"`
		}
		if err := json.Unmarshal(frame.Data, &body); err != nil {
			c.trySend(errorFrame(frame.Seq, kerrors.New(kerrors.InvalidJSON)))
			return
		}
		if err := eng.ClaimDraw(ctx, c.side, models.Conclusion(body.Reason), now); err != nil {
			c.trySend(errorFrame(frame.Seq, err))
			return
		}
		c.trySend(encodeFrame("claim_draw", frame.Seq, struct{}{}))

	case "resign":
		if err := eng.Resign(ctx, c.side, now); err != nil {
			c.trySend(errorFrame(frame.Seq, err))
			return
		}
		c.trySend(encodeFrame("resign", frame.Seq, struct{}{}))

	case "timeout":
		if err := eng.AssertTimeout(ctx, now); err != nil {
			c.trySend(errorFrame(frame.Seq, err))
			return
		}
		c.trySend(encodeFrame("timeout", frame.Seq, struct{}{}))

	default:
		c.trySend(errorFrame(frame.Seq, kerrors.New(kerrors.WrongParameters)))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
