package app

import (
	"sync"
	"time"

	"hackathon-session-service/internal/domain"
)

const (
	notificationTTL = 5 * time.Second
	maxLive         = 5
)

// NotificationQueue is a bounded, self-expiring log of transient feedback
// events. The live set is capped; pushing past the cap evicts the oldest
// immediately, and every entry is removed on its own after a fixed TTL
// regardless of later pushes. Process-local, never persisted.
type NotificationQueue struct {
	mu       sync.Mutex
	nextID   int64
	live     []domain.Notification
	now      func() time.Time
	schedule func(time.Duration, func())
}

func NewNotificationQueue() *NotificationQueue {
	return &NotificationQueue{
		now: time.Now,
		schedule: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// NewNotificationQueueWithScheduler allows deterministic expiry in tests.
func NewNotificationQueueWithScheduler(now func() time.Time, schedule func(time.Duration, func())) *NotificationQueue {
	return &NotificationQueue{now: now, schedule: schedule}
}

// Push appends a notification and schedules its expiry.
func (q *NotificationQueue) Push(message string, kind domain.NotificationKind) domain.Notification {
	q.mu.Lock()
	q.nextID++
	n := domain.Notification{
		ID:        q.nextID,
		Message:   message,
		Kind:      kind,
		CreatedAt: q.now(),
	}
	q.live = append(q.live, n)
	if len(q.live) > maxLive {
		q.live = q.live[len(q.live)-maxLive:]
	}
	q.mu.Unlock()

	q.schedule(notificationTTL, func() { q.Remove(n.ID) })
	return n
}

// Remove drops the notification with the given id, if still live.
func (q *NotificationQueue) Remove(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.live {
		if n.ID == id {
			q.live = append(q.live[:i], q.live[i+1:]...)
			return
		}
	}
}

// Clear drops every live notification.
func (q *NotificationQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.live = nil
}

// Notifications returns a copy of the live set, oldest first.
func (q *NotificationQueue) Notifications() []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Notification, len(q.live))
	copy(out, q.live)
	return out
}
