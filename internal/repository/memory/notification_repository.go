package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/google/uuid"
)

type NotificationRepository struct {
	mu            sync.Mutex
	seq           uint64
	notifications map[string]*storedNotification
	createErr     error
}

type storedNotification struct {
	seq uint64
	n   repository.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{notifications: make(map[string]*storedNotification)}
}

// SetCreateFailure makes Create return err until cleared with nil.
func (r *NotificationRepository) SetCreateFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

func (r *NotificationRepository) Create(_ context.Context, notification *repository.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	notification.ID = uuid.NewString()
	notification.CreatedAt = time.Now()
	r.notifications[notification.ID] = &storedNotification{seq: r.seq, n: *notification}
	return nil
}

func (r *NotificationRepository) FindByID(_ context.Context, id string) (*repository.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.notifications[id]
	if !ok {
		return nil, nil
	}
	n := s.n
	return &n, nil
}

func (r *NotificationRepository) FindByRecipient(_ context.Context, recipientID string, unreadOnly bool) ([]*repository.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*storedNotification
	for _, s := range r.notifications {
		if s.n.RecipientID != recipientID || (unreadOnly && s.n.IsRead) {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })
	if len(matched) > 100 {
		matched = matched[:100]
	}

	out := make([]*repository.Notification, 0, len(matched))
	for _, s := range matched {
		n := s.n
		out = append(out, &n)
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(_ context.Context, recipientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.notifications {
		if s.n.RecipientID == recipientID && !s.n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkAsRead(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.notifications[id]
	if !ok || s.n.IsRead {
		return false, nil
	}
	s.n.IsRead = true
	return true, nil
}

func (r *NotificationRepository) MarkAllAsRead(_ context.Context, recipientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, s := range r.notifications {
		if s.n.RecipientID == recipientID && !s.n.IsRead {
			s.n.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *NotificationRepository) DeleteOlderThan(_ context.Context, olderThan time.Time, readOnly bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, s := range r.notifications {
		if !s.n.CreatedAt.Before(olderThan) || (readOnly && !s.n.IsRead) {
			continue
		}
		delete(r.notifications, id)
		deleted++
	}
	return deleted, nil
}
