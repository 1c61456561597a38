package shipment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/shipment"
	"shiptrack-api-server/internal/storage/memory"
)

func TestDeliveryProofFlow(t *testing.T) {
	proofs := memory.NewProofRepo()
	f := newFixture(t, nil, shipment.WithProofs(proofs))
	ctx := context.Background()
	s := f.advance(t, models.StatusInTransit)

	_, err := f.svc.RecordDeliveryProof(ctx, other, s.ID, "https://cdn.example.com/p.jpg", "abc")
	assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))

	p, err := f.svc.RecordDeliveryProof(ctx, agent, s.ID, "https://cdn.example.com/p.jpg", "abc")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, p.UploadedBy)

	latest, err := f.svc.LatestDeliveryProof(ctx, customer, s.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, latest.ID)

	got, err := f.svc.MarkDelivered(ctx, agent, s.ID, latest.PhotoURL, "")
	require.NoError(t, err)
	assert.Equal(t, latest.PhotoURL, got.DeliveryPhotoURL)

	_, err = f.svc.CheckDeliverable(ctx, agent, s.ID)
	assert.True(t, apperrors.IsInvalidTransition(err), "no uploads after delivery")
}

func TestDeliveryProofNeedsTransit(t *testing.T) {
	f := newFixture(t, nil)
	s := f.advance(t, models.StatusPickedUp)

	_, err := f.svc.RecordDeliveryProof(context.Background(), agent, s.ID, "https://cdn.example.com/p.jpg", "")
	assert.True(t, apperrors.IsInvalidTransition(err))

	_, err = f.svc.RecordDeliveryProof(context.Background(), agent, s.ID, " ", "")
	assert.True(t, apperrors.IsValidation(err))
}
