// internal/notification/inbox.go
package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/realtime"
)

// Inbox is one user's local view of their notifications. The unread counter
// always equals the number of unread items; it is re-checked after every
// mutation.
type Inbox struct {
	userID string
	log    *zap.Logger

	mu     sync.Mutex
	items  []models.Notification
	ids    map[string]struct{}
	unread int
}

func NewInbox(userID string, log *zap.Logger) *Inbox {
	return &Inbox{userID: userID, log: log, ids: make(map[string]struct{})}
}

// Load replaces the inbox with a fetched list (newest first).
func (in *Inbox) Load(items []models.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = in.items[:0]
	in.ids = make(map[string]struct{}, len(items))
	in.unread = 0
	for _, n := range items {
		if _, dup := in.ids[n.ID]; dup {
			continue
		}
		in.ids[n.ID] = struct{}{}
		in.items = append(in.items, n)
		if !n.Read {
			in.unread++
		}
	}
	in.verify()
}

// ApplyInsert prepends a pushed notification. Replays of a known id and
// notifications for another user are ignored.
func (in *Inbox) ApplyInsert(n models.Notification) bool {
	if n.UserID != in.userID {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, dup := in.ids[n.ID]; dup {
		return false
	}
	in.ids[n.ID] = struct{}{}
	in.items = append([]models.Notification{n}, in.items...)
	if !n.Read {
		in.unread++
	}
	in.verify()
	return true
}

// MarkAsRead reports whether the item changed.
func (in *Inbox) MarkAsRead(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		if in.items[i].ID != id {
			continue
		}
		if in.items[i].Read {
			return false
		}
		in.items[i].Read = true
		if in.unread > 0 {
			in.unread--
		}
		in.verify()
		return true
	}
	return false
}

func (in *Inbox) Clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = nil
	in.ids = make(map[string]struct{})
	in.unread = 0
}

func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.unread
}

func (in *Inbox) Items() []models.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]models.Notification(nil), in.items...)
}

// Attach feeds the inbox from the user's notification topic.
func (in *Inbox) Attach(bus *realtime.Bus) *realtime.Subscription {
	return bus.Subscribe(realtime.NotificationsTopic(in.userID), func(_ context.Context, ev realtime.Event) {
		if ev.Type != realtime.EventInsert {
			return
		}
		var n models.Notification
		if err := ev.Decode(&n); err != nil {
			in.log.Warn("undecodable notification event", zap.String("id", ev.ID), zap.Error(err))
			return
		}
		in.ApplyInsert(n)
	})
}

// verify must be called with mu held.
func (in *Inbox) verify() {
	actual := countUnread(in.items)
	if actual != in.unread {
		in.log.Warn("unread counter drifted, recounting",
			zap.String("user_id", in.userID),
			zap.Int("counter", in.unread),
			zap.Int("actual", actual),
		)
		in.unread = actual
	}
}
