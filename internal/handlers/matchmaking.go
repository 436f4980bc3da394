package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"kasupel-server/internal/db"
	"kasupel-server/internal/encryption"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/matchmaking"
	"kasupel-server/internal/middleware"
	"kasupel-server/internal/models"
)

// MatchmakingHandler serves game creation: open finds and invitations.
type MatchmakingHandler struct {
	db         *db.MongoDB
	auth       *middleware.SessionAuth
	crypto     *encryption.Service
	matchmaker *matchmaking.Matchmaker
}

func NewMatchmakingHandler(database *db.MongoDB, sessionAuth *middleware.SessionAuth, crypto *encryption.Service, matchmaker *matchmaking.Matchmaker) *MatchmakingHandler {
	return &MatchmakingHandler{
		db:         database,
		auth:       sessionAuth,
		crypto:     crypto,
		matchmaker: matchmaker,
	}
}

type timeControlRequest struct {
	Mode                 *int `json:"mode"`
	MainThinkingTime     *int `json:"main_thinking_time"`
	FixedExtraTime       *int `json:"fixed_extra_time"`
	TimeIncrementPerTurn *int `json:"time_increment_per_turn"`
}

// profile validates the time-control fields of a request.
func (t timeControlRequest) profile() (models.TimeControl, error) {
	var tc models.TimeControl
	if t.Mode == nil || t.MainThinkingTime == nil || t.FixedExtraTime == nil || t.TimeIncrementPerTurn == nil {
		return tc, kerrors.New(kerrors.ValueRequired)
	}
	tc = models.TimeControl{
		Mode:                 models.Mode(*t.Mode),
		MainThinkingTime:     *t.MainThinkingTime,
		FixedExtraTime:       *t.FixedExtraTime,
		TimeIncrementPerTurn: *t.TimeIncrementPerTurn,
	}
	if !tc.Mode.Valid() {
		return tc, kerrors.New(kerrors.InvalidEnumValue)
	}
	if tc.MainThinkingTime < 0 || tc.FixedExtraTime < 0 || tc.TimeIncrementPerTurn < 0 {
		return tc, kerrors.New(kerrors.NegativeDuration)
	}
	if tc.MainThinkingTime == 0 {
		return tc, kerrors.New(kerrors.ValueRequired)
	}
	return tc, nil
}

type findRequest struct {
	bodyCredentials
	timeControlRequest
}

// Find joins the pending game for the requested profile or opens a new one.
func (h *MatchmakingHandler) Find(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if err := decodeBody(r, h.crypto, true, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, _, err := authenticateBody(r.Context(), h.auth, req.bodyCredentials)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := requireVerified(user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	profile, err := req.profile()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	g, err := h.matchmaker.Find(r.Context(), user, profile, time.Now())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"game_id": g.ID})
}

type inviteRequest struct {
	bodyCredentials
	timeControlRequest
	Invitee string `json:"invitee"`
}

// SendInvitation opens an invited game against a named opponent.
func (h *MatchmakingHandler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeBody(r, h.crypto, true, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, _, err := authenticateBody(r.Context(), h.auth, req.bodyCredentials)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := requireVerified(user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Invitee == "" {
		middleware.WriteError(w, kerrors.New(kerrors.ValueRequired))
		return
	}
	profile, err := req.profile()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	g, err := h.matchmaker.SendInvitation(r.Context(), user, req.Invitee, profile, time.Now())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"game_id": g.ID})
}

// invitedGame resolves the path game for accept and decline.
func (h *MatchmakingHandler) invitedGame(r *http.Request) (*models.Game, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, kerrors.New(kerrors.InvalidInteger)
	}
	return h.db.GameByID(r.Context(), id)
}

type acceptRequest struct {
	bodyCredentials
}

// AcceptInvitation starts an invited game.
func (h *MatchmakingHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeBody(r, h.crypto, false, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, _, err := authenticateBody(r.Context(), h.auth, req.bodyCredentials)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := requireVerified(user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	g, err := h.invitedGame(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.matchmaker.AcceptInvitation(r.Context(), user, g, time.Now()); err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{})
}

// DeclineInvitation removes an invited game.
func (h *MatchmakingHandler) DeclineInvitation(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	g, err := h.invitedGame(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.matchmaker.DeclineInvitation(r.Context(), user, g); err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{})
}
