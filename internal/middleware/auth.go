// Package middleware carries the HTTP cross-cutting concerns: session
// authentication, rate limiting and security headers.
package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
	"kasupel-server/internal/session"
)

// UserLoader resolves authenticated users.
type UserLoader interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
}

// SessionAuth authenticates requests against the session store. Bodyless
// methods carry credentials as query parameters; POST and PATCH carry them
// inside the (possibly encrypted) JSON body, which handlers resolve with
// Authenticate after decoding.
type SessionAuth struct {
	sessions *session.Service
	users    UserLoader
}

func NewSessionAuth(sessions *session.Service, users UserLoader) *SessionAuth {
	return &SessionAuth{sessions: sessions, users: users}
}

// Authenticate validates a session id and token pair and loads the owning
// user.
func (a *SessionAuth) Authenticate(ctx context.Context, id int64, token []byte) (*models.User, *models.Session, error) {
	sess, err := a.sessions.Validate(ctx, id, token, time.Now())
	if err != nil {
		return nil, nil, err
	}
	user, err := a.users.UserByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, kerrors.New(kerrors.SessionNotFound)
	}
	return user, sess, nil
}

// FromQuery reads session_id and session_token query parameters. Both
// absent means an anonymous request; exactly one present is an error.
func (a *SessionAuth) FromQuery(r *http.Request) (*models.User, *models.Session, error) {
	idStr := r.URL.Query().Get("session_id")
	tokenStr := r.URL.Query().Get("session_token")
	if idStr == "" && tokenStr == "" {
		return nil, nil, nil
	}
	if idStr == "" || tokenStr == "" {
		return nil, nil, kerrors.New(kerrors.SessionKeyIncomplete)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, nil, kerrors.New(kerrors.InvalidInteger)
	}
	token, err := base64.StdEncoding.DecodeString(tokenStr)
	if err != nil {
		return nil, nil, kerrors.New(kerrors.InvalidBase64)
	}
	return a.Authenticate(r.Context(), id, token)
}

// RequireQuery wraps a bodyless handler that needs an authenticated user.
func (a *SessionAuth) RequireQuery(next func(http.ResponseWriter, *http.Request, *models.User, *models.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, sess, err := a.FromQuery(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if user == nil {
			WriteError(w, kerrors.New(kerrors.AuthenticationRequired))
			return
		}
		next(w, r, user, sess)
	}
}

// WriteError sends a request error in the documented JSON shape.
func WriteError(w http.ResponseWriter, err error) {
	kerr := kerrors.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kerr.Status())
	json.NewEncoder(w).Encode(kerr)
}
