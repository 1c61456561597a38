package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
)

type ProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
}

func NewProfileRepo() *ProfileRepo {
	return &ProfileRepo{profiles: make(map[string]models.UserProfile)}
}

func (r *ProfileRepo) Insert(_ context.Context, p *models.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; ok {
		return apperrors.Conflict("profile " + p.ID + " already exists")
	}
	for _, existing := range r.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return apperrors.Conflict("email " + p.Email + " is already registered")
		}
	}
	r.profiles[p.ID] = *p
	return nil
}

func (r *ProfileRepo) Get(_ context.Context, id string) (*models.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, apperrors.NotFound("profile", id)
	}
	return &p, nil
}

func (r *ProfileRepo) GetByEmail(_ context.Context, email string) (*models.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if strings.EqualFold(p.Email, email) {
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("profile", email)
}

func (r *ProfileRepo) Update(_ context.Context, id string, upd models.ProfileUpdate, at time.Time) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, apperrors.NotFound("profile", id)
	}
	upd.Apply(&p)
	p.UpdatedAt = at
	r.profiles[id] = p
	return &p, nil
}

func (r *ProfileRepo) ListByRole(_ context.Context, roles ...string) ([]models.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.UserProfile
	for _, p := range r.profiles {
		for _, role := range roles {
			if p.Role == role {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}
