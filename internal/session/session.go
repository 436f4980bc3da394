// Package session manages login sessions. Clients generate their own
// 32-byte secret at login; the server stores only a hash and checks it on
// every authenticated request.
package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

// TokenLength is the required client token size in bytes.
const TokenLength = 32

// Store persists session rows.
type Store interface {
	NextSessionID(ctx context.Context) (int64, error)
	InsertSession(ctx context.Context, s *models.Session) error
	SessionByID(ctx context.Context, id int64) (*models.Session, error)
	DeleteSession(ctx context.Context, id int64) error
	DeleteUserSessions(ctx context.Context, userID int64) error
}

// Service validates and issues sessions.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// HashToken hashes a client token for storage and comparison.
func HashToken(token []byte) string {
	sum := sha256.Sum256(token)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Create issues a session for a user with a client-generated token.
func (s *Service) Create(ctx context.Context, userID int64, token []byte, now time.Time) (*models.Session, error) {
	if len(token) != TokenLength {
		return nil, kerrors.New(kerrors.TokenBadLength)
	}
	id, err := s.store.NextSessionID(ctx)
	if err != nil {
		return nil, err
	}
	sess := &models.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(models.SessionMaxAge),
	}
	if err := s.store.InsertSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate checks a session id and token pair. Expired sessions are removed
// on sight.
func (s *Service) Validate(ctx context.Context, id int64, token []byte, now time.Time) (*models.Session, error) {
	sess, err := s.store.SessionByID(ctx, id)
	if err != nil {
		return nil, kerrors.New(kerrors.SessionNotFound)
	}
	if sess.Expired(now) {
		_ = s.store.DeleteSession(ctx, id)
		return nil, kerrors.New(kerrors.SessionNotFound)
	}
	hash := HashToken(token)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(sess.TokenHash)) != 1 {
		return nil, kerrors.New(kerrors.SessionTokenIncorrect)
	}
	return sess, nil
}

// Logout destroys one session.
func (s *Service) Logout(ctx context.Context, id int64) error {
	return s.store.DeleteSession(ctx, id)
}

// LogoutAll destroys every session for a user, for account deletion and
// password changes.
func (s *Service) LogoutAll(ctx context.Context, userID int64) error {
	return s.store.DeleteUserSessions(ctx, userID)
}

// ParseSocketAuth parses the socket connect header
// "SessionKey <id>|<base64 token>".
func ParseSocketAuth(header string) (id int64, token []byte, err error) {
	if header == "" {
		return 0, nil, kerrors.New(kerrors.SocketAuthMissing)
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found {
		return 0, nil, kerrors.New(kerrors.SocketAuthMalformed)
	}
	if scheme != "SessionKey" {
		return 0, nil, kerrors.New(kerrors.SocketAuthScheme)
	}
	idPart, tokenPart, found := strings.Cut(rest, "|")
	if !found {
		return 0, nil, kerrors.New(kerrors.SocketAuthMalformed)
	}
	id, convErr := strconv.ParseInt(idPart, 10, 64)
	if convErr != nil {
		return 0, nil, kerrors.New(kerrors.SocketAuthMalformed)
	}
	token, convErr = base64.StdEncoding.DecodeString(tokenPart)
	if convErr != nil || len(token) != TokenLength {
		return 0, nil, kerrors.New(kerrors.SocketAuthMalformed)
	}
	return id, token, nil
}
