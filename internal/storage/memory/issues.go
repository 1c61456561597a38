package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/issue"
	"shiptrack-api-server/internal/models"
)

type IssueRepo struct {
	mu     sync.RWMutex
	issues map[string]models.Issue
}

func NewIssueRepo() *IssueRepo {
	return &IssueRepo{issues: make(map[string]models.Issue)}
}

func (r *IssueRepo) Insert(_ context.Context, i *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issues[i.ID]; ok {
		return apperrors.Conflict("issue " + i.ID + " already exists")
	}
	r.issues[i.ID] = *i
	return nil
}

func (r *IssueRepo) Get(_ context.Context, id string) (*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.issues[id]
	if !ok {
		return nil, apperrors.NotFound("issue", id)
	}
	return &i, nil
}

func (r *IssueRepo) List(_ context.Context, f issue.Filter) ([]models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Issue
	for _, i := range r.issues {
		if f.Match(i) {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (r *IssueRepo) Resolve(_ context.Context, id, by string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.issues[id]
	if !ok {
		return apperrors.NotFound("issue", id)
	}
	if i.Status != models.IssueOpen {
		return apperrors.Conflict("issue " + id + " is already " + i.Status)
	}
	i.Status = models.IssueResolved
	i.ResolvedBy = by
	i.ResolvedAt = &at
	r.issues[id] = i
	return nil
}
