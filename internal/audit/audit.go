package audit

import (
	"context"
	"log"
	"net/http"
	"time"

	"kasupel-server/internal/db"
	"kasupel-server/internal/middleware"

	"go.mongodb.org/mongo-driver/bson"
)

// Event types for audit logging
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailed    = "login_failed"
	EventRegister       = "register"
	EventPasswordChange = "password_change"
	EventEmailChange    = "email_change"
	EventLogout         = "logout"
	EventAccountDeleted = "account_deleted"
)

// AuditEvent represents a security-relevant event.
type AuditEvent struct {
	EventType string    `bson:"eventType"`
	UserID    *int64    `bson:"userId,omitempty"`
	Email     string    `bson:"email,omitempty"`
	IP        string    `bson:"ip"`
	UserAgent string    `bson:"userAgent"`
	Details   string    `bson:"details,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// LogEvent writes an audit event to the database (fire-and-forget).
func LogEvent(database *db.MongoDB, eventType string, userID *int64, email string, r *http.Request, details string) {
	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        middleware.GetClientIP(r),
		UserAgent: r.UserAgent(),
		Details:   details,
		CreatedAt: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := database.AuditLog().InsertOne(ctx, bson.M{
			"eventType": event.EventType,
			"userId":    event.UserID,
			"email":     event.Email,
			"ip":        event.IP,
			"userAgent": event.UserAgent,
			"details":   event.Details,
			"createdAt": event.CreatedAt,
		}); err != nil {
			log.Printf("Audit log write failed: %v", err)
		}
	}()
}
