package handlers

import (
	"net/http"
	"strconv"

	"kasupel-server/internal/db"
	"kasupel-server/internal/hub"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/middleware"
	"kasupel-server/internal/session"
)

// SocketHandler upgrades game play connections. Authentication happens
// before the upgrade so failures come back as ordinary HTTP errors.
type SocketHandler struct {
	db       *db.MongoDB
	sessions *session.Service
	auth     *middleware.SessionAuth
	manager  *hub.Manager
}

func NewSocketHandler(database *db.MongoDB, sessions *session.Service, sessionAuth *middleware.SessionAuth, manager *hub.Manager) *SocketHandler {
	return &SocketHandler{db: database, sessions: sessions, auth: sessionAuth, manager: manager}
}

// Connect handles GET /game_socket. Credentials ride in an Authorization
// header of scheme SessionKey plus a Game-ID header.
func (h *SocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	id, token, err := session.ParseSocketAuth(r.Header.Get("Authorization"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, sess, err := h.auth.Authenticate(r.Context(), id, token)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	gameID, err := strconv.ParseInt(r.Header.Get("Game-ID"), 10, 64)
	if err != nil {
		middleware.WriteError(w, kerrors.New(kerrors.SocketGameIDHeader))
		return
	}

	if err := h.manager.Connect(w, r, user, sess, gameID); err != nil {
		middleware.WriteError(w, err)
	}
}
