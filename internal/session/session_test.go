package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

type memStore struct {
	nextID   int64
	sessions map[int64]*models.Session
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[int64]*models.Session)}
}

func (s *memStore) NextSessionID(ctx context.Context) (int64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *memStore) InsertSession(ctx context.Context, sess *models.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *memStore) SessionByID(ctx context.Context, id int64) (*models.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, kerrors.New(kerrors.SessionNotFound)
	}
	return sess, nil
}

func (s *memStore) DeleteSession(ctx context.Context, id int64) error {
	delete(s.sessions, id)
	return nil
}

func (s *memStore) DeleteUserSessions(ctx context.Context, userID int64) error {
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func newToken(t *testing.T) []byte {
	t.Helper()
	token := make([]byte, TokenLength)
	_, err := rand.Read(token)
	require.NoError(t, err)
	return token
}

func TestCreateAndValidate(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	now := time.Now()
	token := newToken(t)

	sess, err := svc.Create(ctx, 7, token, now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, now.Add(models.SessionMaxAge), sess.ExpiresAt)
	assert.NotContains(t, sess.TokenHash, string(token), "only the hash is stored")

	got, err := svc.Validate(ctx, sess.ID, token, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestCreateRejectsWrongTokenSize(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Create(context.Background(), 7, []byte("short"), time.Now())
	assert.True(t, kerrors.Is(err, kerrors.TokenBadLength))
}

func TestValidateRejectsWrongToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	now := time.Now()

	sess, err := svc.Create(ctx, 7, newToken(t), now)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, sess.ID, newToken(t), now)
	assert.True(t, kerrors.Is(err, kerrors.SessionTokenIncorrect))
}

func TestValidateRemovesExpiredSessions(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	now := time.Now()
	token := newToken(t)

	sess, err := svc.Create(ctx, 7, token, now)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, sess.ID, token, now.Add(models.SessionMaxAge+time.Second))
	assert.True(t, kerrors.Is(err, kerrors.SessionNotFound))
	_, exists := store.sessions[sess.ID]
	assert.False(t, exists, "expired sessions are deleted on sight")
}

func TestLogoutAll(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.Create(ctx, 7, newToken(t), now)
	require.NoError(t, err)
	_, err = svc.Create(ctx, 7, newToken(t), now)
	require.NoError(t, err)
	other, err := svc.Create(ctx, 8, newToken(t), now)
	require.NoError(t, err)

	require.NoError(t, svc.LogoutAll(ctx, 7))
	assert.Len(t, store.sessions, 1)
	_, exists := store.sessions[other.ID]
	assert.True(t, exists)
}

func TestParseSocketAuth(t *testing.T) {
	token := make([]byte, TokenLength)
	encoded := base64.StdEncoding.EncodeToString(token)

	id, parsed, err := ParseSocketAuth("SessionKey 42|" + encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, token, parsed)

	_, _, err = ParseSocketAuth("")
	assert.True(t, kerrors.Is(err, kerrors.SocketAuthMissing))

	_, _, err = ParseSocketAuth("SessionKey")
	assert.True(t, kerrors.Is(err, kerrors.SocketAuthMalformed))

	_, _, err = ParseSocketAuth("Bearer 42|" + encoded)
	assert.True(t, kerrors.Is(err, kerrors.SocketAuthScheme))

	_, _, err = ParseSocketAuth("SessionKey 42" + encoded)
	assert.True(t, kerrors.Is(err, kerrors.SocketAuthMalformed))

	_, _, err = ParseSocketAuth("SessionKey x|" + encoded)
	assert.True(t, kerrors.Is(err, kerrors.SocketAuthMalformed))

	_, _, err = ParseSocketAuth("SessionKey 42|not-base64!")
	assert.True(t, kerrors.Is(err, kerrors.SocketAuthMalformed))

	short := base64.StdEncoding.EncodeToString([]byte("short"))
	_, _, err = ParseSocketAuth("SessionKey 42|" + short)
	assert.True(t, kerrors.Is(err, kerrors.SocketAuthMalformed))
}
