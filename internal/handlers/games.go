package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"kasupel-server/internal/db"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/middleware"
	"kasupel-server/internal/models"
)

// GamesHandler serves game listings and single-game lookups.
type GamesHandler struct {
	db   *db.MongoDB
	auth *middleware.SessionAuth
}

func NewGamesHandler(database *db.MongoDB, sessionAuth *middleware.SessionAuth) *GamesHandler {
	return &GamesHandler{db: database, auth: sessionAuth}
}

// gamePage renders a listing page in the referenced flavour: games carry
// user ids and a parallel users array names each referenced user once.
func (h *GamesHandler) gamePage(ctx context.Context, w http.ResponseWriter, games []*models.Game, page int, total int64) {
	pages, err := checkPage(page, total)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	var ids []int64
	seen := make(map[int64]bool)
	for _, g := range games {
		for _, id := range g.ReferencedUserIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	users, err := h.db.UsersByIDs(ctx, ids)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	gameWires := make([]models.GameWire, 0, len(games))
	for _, g := range games {
		gameWires = append(gameWires, g.WireReferenced())
	}
	userWires := make([]models.UserWire, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			userWires = append(userWires, u.Wire(false))
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"games": gameWires,
		"users": userWires,
		"pages": pages,
	})
}

type pagedLister func(ctx context.Context, userID int64, offset, limit int) ([]*models.Game, int64, error)

func (h *GamesHandler) listFor(w http.ResponseWriter, r *http.Request, userID int64, list pagedLister) {
	page, err := pageParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	games, total, err := list(r.Context(), userID, page*PerPage, PerPage)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.gamePage(r.Context(), w, games, page, total)
}

// Invites lists games the caller has been invited to.
func (h *GamesHandler) Invites(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	h.listFor(w, r, user.ID, h.db.InvitesFor)
}

// Searches lists the caller's open find games.
func (h *GamesHandler) Searches(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	h.listFor(w, r, user.ID, h.db.SearchesFor)
}

// Ongoing lists the caller's games in progress.
func (h *GamesHandler) Ongoing(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	h.listFor(w, r, user.ID, h.db.OngoingFor)
}

// Completed lists any account's finished games. Anonymous: finished games
// are public record.
func (h *GamesHandler) Completed(w http.ResponseWriter, r *http.Request) {
	account, err := intParam(r, "account")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.listFor(w, r, account, h.db.CompletedFor)
}

// CommonCompleted lists finished games between the caller and another
// account.
func (h *GamesHandler) CommonCompleted(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	account, err := intParam(r, "account")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	page, err := pageParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	games, total, err := h.db.CommonCompletedFor(r.Context(), user.ID, account, page*PerPage, PerPage)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.gamePage(r.Context(), w, games, page, total)
}

// ByID returns one game in the included flavour, users embedded.
func (h *GamesHandler) ByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		middleware.WriteError(w, kerrors.New(kerrors.InvalidInteger))
		return
	}
	g, err := h.db.GameByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	users, err := h.db.UsersByIDs(r.Context(), g.ReferencedUserIDs())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	var away, invited *models.User
	if g.AwayID != nil {
		away = users[*g.AwayID]
	}
	if g.InvitedID != nil {
		invited = users[*g.InvitedID]
	}
	respondWithJSON(w, http.StatusOK, g.WireIncluded(users[g.HostID], away, invited))
}
