package memory

import (
	"context"
	"sort"
	"sync"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
)

type NotificationRepo struct {
	mu    sync.RWMutex
	items map[string]models.Notification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{items: make(map[string]models.Notification)}
}

func (r *NotificationRepo) Insert(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[n.ID]; ok {
		return apperrors.Conflict("notification " + n.ID + " already exists")
	}
	r.items[n.ID] = *n
	return nil
}

func (r *NotificationRepo) ListByUser(_ context.Context, userID string) ([]models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Notification
	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// MarkRead reports whether the notification went from unread to read.
func (r *NotificationRepo) MarkRead(_ context.Context, userID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.UserID != userID {
		return false, apperrors.NotFound("notification", id)
	}
	if n.Read {
		return false, nil
	}
	n.Read = true
	r.items[id] = n
	return true, nil
}

func (r *NotificationRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, item := range r.items {
		if item.UserID == userID {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}
