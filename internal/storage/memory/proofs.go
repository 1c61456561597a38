package memory

import (
	"context"
	"sync"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
)

type ProofRepo struct {
	mu     sync.RWMutex
	proofs map[string][]models.DeliveryProof
}

func NewProofRepo() *ProofRepo {
	return &ProofRepo{proofs: make(map[string][]models.DeliveryProof)}
}

func (r *ProofRepo) Insert(_ context.Context, p *models.DeliveryProof) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proofs[p.ShipmentID] = append(r.proofs[p.ShipmentID], *p)
	return nil
}

func (r *ProofRepo) Latest(_ context.Context, shipmentID string) (*models.DeliveryProof, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.proofs[shipmentID]
	if len(list) == 0 {
		return nil, apperrors.NotFound("delivery proof", shipmentID)
	}
	p := list[len(list)-1]
	return &p, nil
}
