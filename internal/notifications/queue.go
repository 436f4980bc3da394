// Package notifications implements the per-user notification queue.
// Notifications are always persisted; when the target user has any open
// socket they are additionally delivered immediately as a notification
// event. Unread counts are maintained as a counter on the user row rather
// than recounted.
package notifications

import (
	"context"
	"log"
	"time"

	"kasupel-server/internal/kerrors"
	"kasupel-server/internal/models"
)

// PerPage is the notification list page size.
const PerPage = 100

// Store persists notifications and the unread counter.
type Store interface {
	NextNotificationID(ctx context.Context) (int64, error)
	InsertNotification(ctx context.Context, n *models.Notification) error
	NotificationByID(ctx context.Context, id int64) (*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	NotificationsForUser(ctx context.Context, userID int64, offset, limit int) ([]*models.Notification, int64, error)
	AdjustUnread(ctx context.Context, userID int64, delta int64) error
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

// LiveDeliverer pushes a notification event to any of a user's open
// sockets, reporting whether at least one delivery happened.
type LiveDeliverer interface {
	DeliverNotification(userID int64, n models.NotificationWire) bool
}

// Queue is the notification service.
type Queue struct {
	store Store
	live  LiveDeliverer
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// SetLiveDeliverer attaches the socket layer once it exists.
func (q *Queue) SetLiveDeliverer(live LiveDeliverer) {
	q.live = live
}

// Push enqueues a notification. Failures are logged, not returned: a lost
// notification must never fail the operation that produced it.
func (q *Queue) Push(ctx context.Context, userID int64, typeCode string, gameID *int64) {
	id, err := q.store.NextNotificationID(ctx)
	if err != nil {
		log.Printf("Notifications: allocating id for user %d: %v", userID, err)
		return
	}
	n := &models.Notification{
		ID:       id,
		UserID:   userID,
		SentAt:   time.Now(),
		TypeCode: typeCode,
		GameID:   gameID,
	}
	if err := q.store.InsertNotification(ctx, n); err != nil {
		log.Printf("Notifications: inserting %s for user %d: %v", typeCode, userID, err)
		return
	}
	if err := q.store.AdjustUnread(ctx, userID, 1); err != nil {
		log.Printf("Notifications: bumping unread count for user %d: %v", userID, err)
	}
	if q.live != nil {
		q.live.DeliverNotification(userID, n.Wire())
	}
}

// List returns one page of a user's notifications, newest first, plus the
// total number of pages.
func (q *Queue) List(ctx context.Context, userID int64, page int) ([]*models.Notification, int, error) {
	if page < 0 {
		return nil, 0, kerrors.New(kerrors.PageOutOfRange)
	}
	items, total, err := q.store.NotificationsForUser(ctx, userID, page*PerPage, PerPage)
	if err != nil {
		return nil, 0, err
	}
	pages := int((total + PerPage - 1) / PerPage)
	if pages > 0 && page >= pages {
		return nil, 0, kerrors.New(kerrors.PageOutOfRange)
	}
	return items, pages, nil
}

// Unread returns the maintained unread counter.
func (q *Queue) Unread(ctx context.Context, userID int64) (int64, error) {
	return q.store.UnreadCount(ctx, userID)
}

// Ack marks one notification read. Acking another user's notification, or
// an unknown id, is indistinguishable: both are 1401.
func (q *Queue) Ack(ctx context.Context, userID, notificationID int64) error {
	n, err := q.store.NotificationByID(ctx, notificationID)
	if err != nil || n.UserID != userID {
		return kerrors.New(kerrors.NotificationNotFound)
	}
	if n.Read {
		return nil
	}
	if err := q.store.MarkNotificationRead(ctx, notificationID); err != nil {
		return err
	}
	return q.store.AdjustUnread(ctx, userID, -1)
}
