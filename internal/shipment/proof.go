package shipment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
)

// ProofStore keeps uploaded delivery photos.
type ProofStore interface {
	Insert(ctx context.Context, p *models.DeliveryProof) error
	Latest(ctx context.Context, shipmentID string) (*models.DeliveryProof, error)
}

func WithProofs(p ProofStore) Option { return func(s *Service) { s.proofs = p } }

// CheckDeliverable reports whether actor may deliver id right now. Upload
// handlers call it before storing a photo.
func (s *Service) CheckDeliverable(ctx context.Context, actor Actor, id string) (*models.Shipment, error) {
	sh, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sh.Status != models.StatusInTransit {
		return nil, apperrors.InvalidTransition(string(OpDeliver), id, string(sh.Status), string(models.StatusInTransit))
	}
	if err := requireAssignedAgent(actor, *sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// RecordDeliveryProof stores the uploaded photo's URL and content hash.
func (s *Service) RecordDeliveryProof(ctx context.Context, actor Actor, id, photoURL, hash string) (*models.DeliveryProof, error) {
	if strings.TrimSpace(photoURL) == "" {
		return nil, apperrors.Validation("deliveryPhotoUrl", "Delivery photo is required")
	}
	if _, err := s.CheckDeliverable(ctx, actor, id); err != nil {
		return nil, err
	}
	p := &models.DeliveryProof{
		ID:         uuid.NewString(),
		ShipmentID: id,
		PhotoURL:   photoURL,
		PhotoHash:  hash,
		UploadedBy: actor.ID,
		CreatedAt:  s.now().UTC(),
	}
	if s.proofs == nil {
		return p, nil
	}
	if err := s.proofs.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LatestDeliveryProof returns the most recent photo for a visible shipment.
func (s *Service) LatestDeliveryProof(ctx context.Context, actor Actor, id string) (*models.DeliveryProof, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	if s.proofs == nil {
		return nil, apperrors.NotFound("delivery proof", id)
	}
	return s.proofs.Latest(ctx, id)
}
