package memory

import (
	"context"
	"sync"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
)

type MessageRepo struct {
	mu   sync.RWMutex
	byID map[string]struct{}
	log  map[string][]models.Message
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{byID: make(map[string]struct{}), log: make(map[string][]models.Message)}
}

func (r *MessageRepo) Insert(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; ok {
		return apperrors.Conflict("message " + m.ID + " already exists")
	}
	r.byID[m.ID] = struct{}{}
	r.log[m.ShipmentID] = append(r.log[m.ShipmentID], *m)
	return nil
}

// ListByShipment returns messages in insertion order; callers sort.
func (r *MessageRepo) ListByShipment(_ context.Context, shipmentID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Message(nil), r.log[shipmentID]...), nil
}
