package models

import (
	"fmt"
	"time"
)

// DefaultElo is the rating assigned to new accounts.
const DefaultElo = 1000

// User is a registered account.
type User struct {
	ID                int64     `bson:"_id" json:"id"`
	Username          string    `bson:"username" json:"username"`
	PasswordHash      string    `bson:"passwordHash" json:"-"`
	Email             string    `bson:"email" json:"email,omitempty"`
	EmailVerified     bool      `bson:"emailVerified" json:"email_verified"`
	VerificationToken string    `bson:"verificationToken,omitempty" json:"-"`
	AvatarID          *int64    `bson:"avatarId,omitempty" json:"avatar_id,omitempty"`
	Elo               int       `bson:"elo" json:"elo"`
	UnreadCount       int64     `bson:"unreadCount" json:"-"`
	Deleted           bool      `bson:"deleted,omitempty" json:"-"`
	CreatedAt         time.Time `bson:"createdAt" json:"created_at"`
}

// UserWire is the public JSON representation of an account. Email is only
// present when the account owner requests themselves.
type UserWire struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email,omitempty"`
	Elo       int     `json:"elo"`
	AvatarURL *string `json:"avatar_url"`
	CreatedAt int64   `json:"created_at"`
}

// Wire converts the user for API responses. withEmail should only be true
// for the owner's own view.
func (u *User) Wire(withEmail bool) UserWire {
	w := UserWire{
		ID:        u.ID,
		Username:  u.Username,
		Elo:       u.Elo,
		CreatedAt: u.CreatedAt.Unix(),
	}
	if withEmail {
		w.Email = u.Email
	}
	if u.AvatarID != nil {
		url := fmt.Sprintf("/media/avatar/%d", *u.AvatarID)
		w.AvatarURL = &url
	}
	return w
}

// Session authenticates a logged-in user. The token itself is generated by
// the client and never stored; only its hash is kept.
type Session struct {
	ID        int64     `bson:"_id" json:"id"`
	UserID    int64     `bson:"userId" json:"user_id"`
	TokenHash string    `bson:"tokenHash" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expires_at"`
}

// SessionMaxAge is how long a session lasts from creation.
const SessionMaxAge = 30 * 24 * time.Hour

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Avatar is a stored profile image. IDs are allocated fresh on every upload
// so that URLs are immutable and cacheable forever.
type Avatar struct {
	ID          int64  `bson:"_id"`
	UserID      int64  `bson:"userId"`
	ContentType string `bson:"contentType"`
	Data        []byte `bson:"data"`
}
