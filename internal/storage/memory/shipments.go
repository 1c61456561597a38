// Package memory holds in-process repositories with the same conditional
// write semantics as the mongo ones. Used by tests and storage.driver=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/shipment"
)

type ShipmentRepo struct {
	mu        sync.RWMutex
	shipments map[string]models.Shipment
	seq       int64
}

func NewShipmentRepo() *ShipmentRepo {
	return &ShipmentRepo{shipments: make(map[string]models.Shipment)}
}

// Seed stores shipments as-is and advances the id counter past them.
func (r *ShipmentRepo) Seed(list ...models.Shipment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range list {
		r.shipments[s.ID] = s.Clone()
		r.seq++
	}
}

// RaiseCounter makes sure the next allocated id is above n.
func (r *ShipmentRepo) RaiseCounter(_ context.Context, n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.seq {
		r.seq = n
	}
	return nil
}

func (r *ShipmentRepo) NextID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Transport("next shipment id", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return shipment.FormatID(r.seq), nil
}

func (r *ShipmentRepo) Insert(ctx context.Context, s *models.Shipment) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Transport("insert shipment", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[s.ID]; ok {
		return apperrors.Conflict("shipment " + s.ID + " already exists")
	}
	r.shipments[s.ID] = s.Clone()
	return nil
}

func (r *ShipmentRepo) Get(ctx context.Context, id string) (*models.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Transport("get shipment", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shipments[id]
	if !ok {
		return nil, apperrors.NotFound("shipment", id)
	}
	out := s.Clone()
	return &out, nil
}

func (r *ShipmentRepo) List(ctx context.Context, f shipment.Filter) ([]models.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Transport("list shipments", err)
	}
	r.mu.RLock()
	out := make([]models.Shipment, 0, len(r.shipments))
	for _, s := range r.shipments {
		if f.Match(s) {
			out = append(out, s.Clone())
		}
	}
	r.mu.RUnlock()
	shipment.SortNewestFirst(out)
	return out, nil
}

func (r *ShipmentRepo) Update(ctx context.Context, id string, expected models.ShipmentStatus, patch models.ShipmentPatch) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Transport("update shipment", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[id]
	if !ok {
		return apperrors.NotFound("shipment", id)
	}
	if s.Status != expected {
		return apperrors.InvalidTransition("update", id, string(s.Status), string(expected))
	}
	s = s.Clone()
	patch.Apply(&s)
	r.shipments[id] = s
	return nil
}

func (r *ShipmentRepo) UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Transport("update location", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[id]
	if !ok {
		return apperrors.NotFound("shipment", id)
	}
	if s.Status != models.StatusInTransit {
		return apperrors.InvalidTransition("update_location", id, string(s.Status), string(models.StatusInTransit))
	}
	s.CurrentLat, s.CurrentLng = &lat, &lng
	s.UpdatedAt = at
	r.shipments[id] = s
	return nil
}
