package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"kasupel-server/internal/db"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/middleware"
)

// MediaHandler serves stored avatars.
type MediaHandler struct {
	db *db.MongoDB
}

func NewMediaHandler(database *db.MongoDB) *MediaHandler {
	return &MediaHandler{db: database}
}

// Avatar serves GET /media/avatar/<id>. Avatar ids are immutable, so the
// response can be cached indefinitely.
func (h *MediaHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		middleware.WriteError(w, kerrors.New(kerrors.MediaNotFound))
		return
	}
	avatar, err := h.db.AvatarByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", avatar.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(avatar.Data)
}
