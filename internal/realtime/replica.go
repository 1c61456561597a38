// internal/realtime/replica.go
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"shiptrack-api-server/internal/models"
)

// Lister reloads the full shipment collection, newest first.
type Lister interface {
	List(ctx context.Context) ([]models.Shipment, error)
}

type ListerFunc func(ctx context.Context) ([]models.Shipment, error)

func (f ListerFunc) List(ctx context.Context) ([]models.Shipment, error) { return f(ctx) }

// StatusChange is the user-facing notice emitted when a merged update moves
// a shipment to a new status.
type StatusChange struct {
	ShipmentID string
	From       models.ShipmentStatus
	To         models.ShipmentStatus
}

func (c StatusChange) String() string {
	return fmt.Sprintf("Shipment %s is now %s", c.ShipmentID, c.To)
}

// Replica is a read-only copy of the shipment collection kept current by
// realtime events. Updates are merged field by field with the remote value
// winning unless the update is older than the local copy; inserts and
// deletes reload everything.
type Replica struct {
	lister   Lister
	onStatus func(StatusChange)
	log      *zap.Logger

	mu    sync.RWMutex
	byID  map[string]models.Shipment
	order []string
}

func NewReplica(lister Lister, onStatus func(StatusChange), log *zap.Logger) *Replica {
	if onStatus == nil {
		onStatus = func(StatusChange) {}
	}
	return &Replica{
		lister:   lister,
		onStatus: onStatus,
		log:      log,
		byID:     make(map[string]models.Shipment),
	}
}

func (r *Replica) Refresh(ctx context.Context) error {
	list, err := r.lister.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh shipments: %w", err)
	}
	byID := make(map[string]models.Shipment, len(list))
	order := make([]string, 0, len(list))
	for _, s := range list {
		byID[s.ID] = s.Clone()
		order = append(order, s.ID)
	}

	r.mu.Lock()
	r.byID = byID
	r.order = order
	r.mu.Unlock()
	return nil
}

// Attach subscribes the replica to the shipments topic.
func (r *Replica) Attach(bus *Bus) *Subscription {
	return bus.Subscribe(ShipmentsTopic, func(ctx context.Context, ev Event) {
		if err := r.Apply(ctx, ev); err != nil {
			r.log.Warn("replica could not apply event", zap.String("shipment_id", ev.ID), zap.Error(err))
		}
	})
}

func (r *Replica) Apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventInsert, EventDelete:
		return r.Refresh(ctx)
	case EventUpdate:
		return r.merge(ctx, ev)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (r *Replica) merge(ctx context.Context, ev Event) error {
	r.mu.Lock()
	local, ok := r.byID[ev.ID]
	if !ok {
		r.mu.Unlock()
		return r.Refresh(ctx)
	}
	if at, ok := recordTime(ev.Record); ok && at.Before(local.UpdatedAt) {
		r.mu.Unlock()
		r.log.Debug("dropping stale shipment update",
			zap.String("shipment_id", ev.ID),
			zap.Time("event_updated_at", at),
			zap.Time("local_updated_at", local.UpdatedAt),
		)
		return nil
	}

	merged, err := mergeFields(local, ev.Record)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.byID[ev.ID] = merged
	r.mu.Unlock()

	if merged.Status != local.Status {
		change := StatusChange{ShipmentID: ev.ID, From: local.Status, To: merged.Status}
		r.log.Info(change.String())
		r.onStatus(change)
	}
	return nil
}

// recordTime reads the updated_at stamp carried by an update event.
func recordTime(record map[string]any) (time.Time, bool) {
	switch v := record["updated_at"].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

// mergeFields overlays remote onto local at the top level of the JSON form.
func mergeFields(local models.Shipment, remote map[string]any) (models.Shipment, error) {
	b, err := json.Marshal(local)
	if err != nil {
		return local, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return local, err
	}
	for k, v := range remote {
		doc[k] = v
	}
	b, err = json.Marshal(doc)
	if err != nil {
		return local, err
	}
	var out models.Shipment
	if err := json.Unmarshal(b, &out); err != nil {
		return local, fmt.Errorf("merge shipment %s: %w", local.ID, err)
	}
	return out, nil
}

func (r *Replica) Get(id string) (models.Shipment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return models.Shipment{}, false
	}
	return s.Clone(), true
}

// Shipments returns the collection in the order of the last refresh.
func (r *Replica) Shipments() []models.Shipment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Shipment, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.byID[id]; ok {
			out = append(out, s.Clone())
		}
	}
	return out
}
