package handlers

import (
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"kasupel-server/internal/audit"
	"kasupel-server/internal/auth"
	"kasupel-server/internal/db"
	"kasupel-server/internal/email"
	"kasupel-server/internal/encryption"
	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/middleware"
	"kasupel-server/internal/models"
	"kasupel-server/internal/notifications"
	"kasupel-server/internal/session"
)

const maxAvatarSize = 1 << 20

// AccountsHandler serves account management, profiles, the leaderboard and
// the notification queue.
type AccountsHandler struct {
	db        *db.MongoDB
	sessions  *session.Service
	auth      *middleware.SessionAuth
	passwords *auth.PasswordService
	crypto    *encryption.Service
	mailer    *email.ResendService
	notify    *notifications.Queue
}

func NewAccountsHandler(database *db.MongoDB, sessions *session.Service, sessionAuth *middleware.SessionAuth, passwords *auth.PasswordService, crypto *encryption.Service, mailer *email.ResendService, notify *notifications.Queue) *AccountsHandler {
	return &AccountsHandler{
		db:        database,
		sessions:  sessions,
		auth:      sessionAuth,
		passwords: passwords,
		crypto:    crypto,
		mailer:    mailer,
		notify:    notify,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Login checks credentials and issues a session for the client-generated
// token. The body is encrypted, so the password never crosses in the clear
// even behind broken TLS.
func (h *AccountsHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, h.crypto, true, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" || req.Token == "" {
		middleware.WriteError(w, kerrors.New(kerrors.ValueRequired))
		return
	}
	token, err := base64.StdEncoding.DecodeString(req.Token)
	if err != nil {
		middleware.WriteError(w, kerrors.New(kerrors.InvalidBase64))
		return
	}

	user, err := h.db.UserByUsername(r.Context(), req.Username)
	if err != nil {
		// Same answer for unknown user and wrong password.
		audit.LogEvent(h.db, audit.EventLoginFailed, nil, "", r, req.Username)
		middleware.WriteError(w, kerrors.New(kerrors.BadLoginDetails))
		return
	}
	if err := h.passwords.ComparePassword(user.PasswordHash, req.Password); err != nil {
		audit.LogEvent(h.db, audit.EventLoginFailed, &user.ID, user.Email, r, "")
		middleware.WriteError(w, kerrors.New(kerrors.BadLoginDetails))
		return
	}

	sess, err := h.sessions.Create(r.Context(), user.ID, token, time.Now())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	audit.LogEvent(h.db, audit.EventLoginSuccess, &user.ID, user.Email, r, "")
	respondWithJSON(w, http.StatusOK, map[string]int64{"session_id": sess.ID})
}

// Logout destroys the calling session.
func (h *AccountsHandler) Logout(w http.ResponseWriter, r *http.Request, user *models.User, sess *models.Session) {
	if err := h.sessions.Logout(r.Context(), sess.ID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	audit.LogEvent(h.db, audit.EventLogout, &user.ID, user.Email, r, "")
	respondWithJSON(w, http.StatusOK, map[string]any{})
}

type createRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// Create registers a new account and mails its verification code.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, h.crypto, true, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := auth.ValidateUsername(req.Username); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.passwords.ValidatePassword(req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if _, err := h.db.UserByEmail(r.Context(), req.Email); err == nil {
		middleware.WriteError(w, kerrors.New(kerrors.EmailTaken))
		return
	}

	hash, err := h.passwords.HashPassword(req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	id, err := h.db.NextUserID(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	user := &models.User{
		ID:                id,
		Username:          req.Username,
		PasswordHash:      hash,
		Email:             req.Email,
		VerificationToken: auth.NewVerificationToken(),
		Elo:               models.DefaultElo,
		CreatedAt:         time.Now(),
	}
	if err := h.db.InsertUser(r.Context(), user); err != nil {
		middleware.WriteError(w, err)
		return
	}

	audit.LogEvent(h.db, audit.EventRegister, &user.ID, user.Email, r, "")
	h.notify.Push(r.Context(), user.ID, models.NotifyWelcome, nil)
	go h.sendVerification(user)
	respondWithJSON(w, http.StatusOK, map[string]int64{"id": user.ID})
}

func (h *AccountsHandler) sendVerification(user *models.User) {
	if err := h.mailer.SendVerificationEmail(user.Email, user.Username, user.VerificationToken); err != nil {
		log.Printf("Accounts: verification mail for user %d: %v", user.ID, err)
	}
}

// ResendVerification regenerates the verification token and mails it again.
func (h *AccountsHandler) ResendVerification(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	if user.EmailVerified {
		middleware.WriteError(w, kerrors.New(kerrors.EmailAlreadyVerified))
		return
	}
	user.VerificationToken = auth.NewVerificationToken()
	if err := h.db.SaveUser(r.Context(), user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	go h.sendVerification(user)
	respondWithJSON(w, http.StatusOK, map[string]any{})
}

// VerifyEmail consumes a verification token. Anonymous so the code can be
// entered from any device.
func (h *AccountsHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	token := r.URL.Query().Get("token")
	if username == "" || token == "" {
		middleware.WriteError(w, kerrors.New(kerrors.ValueRequired))
		return
	}
	user, err := h.db.UserByUsername(r.Context(), username)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if user.EmailVerified {
		middleware.WriteError(w, kerrors.New(kerrors.EmailAlreadyVerified))
		return
	}
	if user.VerificationToken == "" || user.VerificationToken != token {
		middleware.WriteError(w, kerrors.New(kerrors.VerifyTokenIncorrect))
		return
	}
	user.EmailVerified = true
	user.VerificationToken = ""
	if err := h.db.SaveUser(r.Context(), user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{})
}

// Me returns the caller's own account, email included.
func (h *AccountsHandler) Me(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	respondWithJSON(w, http.StatusOK, user.Wire(true))
}

type updateMeRequest struct {
	bodyCredentials
	Password *string `json:"password"`
	Email    *string `json:"email"`
}

// UpdateMe changes the caller's password or email. Password changes revoke
// every session; an email change restarts verification.
func (h *AccountsHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeBody(r, h.crypto, true, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, _, err := authenticateBody(r.Context(), h.auth, req.bodyCredentials)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Password == nil && req.Email == nil {
		middleware.WriteError(w, kerrors.New(kerrors.ValueRequired))
		return
	}

	if req.Password != nil {
		if err := h.passwords.ValidatePassword(*req.Password); err != nil {
			middleware.WriteError(w, err)
			return
		}
		hash, err := h.passwords.HashPassword(*req.Password)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		user.PasswordHash = hash
		audit.LogEvent(h.db, audit.EventPasswordChange, &user.ID, user.Email, r, "")
	}

	if req.Email != nil && *req.Email != user.Email {
		if err := auth.ValidateEmail(*req.Email); err != nil {
			middleware.WriteError(w, err)
			return
		}
		if _, err := h.db.UserByEmail(r.Context(), *req.Email); err == nil {
			middleware.WriteError(w, kerrors.New(kerrors.EmailTaken))
			return
		}
		user.Email = *req.Email
		user.EmailVerified = false
		user.VerificationToken = auth.NewVerificationToken()
		audit.LogEvent(h.db, audit.EventEmailChange, &user.ID, user.Email, r, "")
		go h.sendVerification(user)
	}

	if err := h.db.SaveUser(r.Context(), user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Password != nil {
		// Every session is revoked, this one included; the client logs in
		// again with the new password.
		if err := h.sessions.LogoutAll(r.Context(), user.ID); err != nil {
			log.Printf("Accounts: revoking sessions for user %d: %v", user.ID, err)
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{})
}

var allowedAvatarTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// UploadAvatar stores a new profile image from the raw request body. Each
// upload gets a fresh id so avatar URLs never change content.
func (h *AccountsHandler) UploadAvatar(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAvatarSize+1))
	if err != nil || len(data) == 0 || len(data) > maxAvatarSize {
		middleware.WriteError(w, kerrors.New(kerrors.InvalidImage))
		return
	}
	contentType := http.DetectContentType(data)
	if !allowedAvatarTypes[contentType] {
		middleware.WriteError(w, kerrors.New(kerrors.InvalidImage))
		return
	}

	id, err := h.db.NextAvatarID(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	avatar := &models.Avatar{ID: id, UserID: user.ID, ContentType: contentType, Data: data}
	if err := h.db.InsertAvatar(r.Context(), avatar); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user.AvatarID = &id
	if err := h.db.SaveUser(r.Context(), user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"avatar_id": id})
}

// DeleteMe tombstones the caller's account. Finished games keep referencing
// the id; the username and email become reusable.
func (h *AccountsHandler) DeleteMe(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	if err := h.db.TombstoneUser(r.Context(), user.ID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.sessions.LogoutAll(r.Context(), user.ID); err != nil {
		log.Printf("Accounts: revoking sessions for deleted user %d: %v", user.ID, err)
	}
	if err := h.db.DeleteUserAvatars(r.Context(), user.ID); err != nil {
		log.Printf("Accounts: removing avatars for deleted user %d: %v", user.ID, err)
	}
	audit.LogEvent(h.db, audit.EventAccountDeleted, &user.ID, user.Email, r, "")
	respondWithJSON(w, http.StatusOK, map[string]any{})
}

// AccountByID returns a public profile by id.
func (h *AccountsHandler) AccountByID(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, err := h.db.UserByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user.Wire(false))
}

// AccountByUsername returns a public profile by username.
func (h *AccountsHandler) AccountByUsername(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	user, err := h.db.UserByUsername(r.Context(), username)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user.Wire(false))
}

// Leaderboard lists accounts by rating, best first.
func (h *AccountsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	users, total, err := h.db.Leaderboard(r.Context(), page*PerPage, PerPage)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	pages, err := checkPage(page, total)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	wires := make([]models.UserWire, 0, len(users))
	for _, u := range users {
		wires = append(wires, u.Wire(false))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"users": wires, "pages": pages})
}

// Notifications lists the caller's notifications, newest first.
func (h *AccountsHandler) Notifications(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	page, err := pageParam(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	items, pages, err := h.notify.List(r.Context(), user.ID, page)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	wires := make([]models.NotificationWire, 0, len(items))
	for _, n := range items {
		wires = append(wires, n.Wire())
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"notifications": wires, "pages": pages})
}

// UnreadCount returns the maintained unread notification counter.
func (h *AccountsHandler) UnreadCount(w http.ResponseWriter, r *http.Request, user *models.User, _ *models.Session) {
	count, err := h.notify.Unread(r.Context(), user.ID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

type ackRequest struct {
	bodyCredentials
	Notification *int64 `json:"notification"`
}

// AckNotification marks one notification read.
func (h *AccountsHandler) AckNotification(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := decodeBody(r, h.crypto, false, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, _, err := authenticateBody(r.Context(), h.auth, req.bodyCredentials)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Notification == nil {
		middleware.WriteError(w, kerrors.New(kerrors.ValueRequired))
		return
	}
	if err := h.notify.Ack(r.Context(), user.ID, *req.Notification); err != nil {
		middleware.WriteError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{})
}
