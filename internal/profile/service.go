// internal/profile/service.go
package profile

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/auth"
	"shiptrack-api-server/internal/models"
)

const minPasswordLen = 6

type Repository interface {
	Insert(ctx context.Context, p *models.UserProfile) error
	Get(ctx context.Context, id string) (*models.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	Update(ctx context.Context, id string, upd models.ProfileUpdate, at time.Time) (*models.UserProfile, error)
	ListByRole(ctx context.Context, roles ...string) ([]models.UserProfile, error)
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	Address  string `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Session is what register and login hand back to the client.
type Session struct {
	Token   string              `json:"token"`
	Profile *models.UserProfile `json:"profile"`
}

type Service struct {
	repo   Repository
	tokens *auth.TokenManager
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, tokens *auth.TokenManager, log *zap.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, log: log, now: time.Now}
}

// Register creates a profile and signs the user in. Admins are provisioned
// by the seeder, never through sign-up.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.Validation("email", "a valid email address is required")
	}
	if len(req.Password) < minPasswordLen {
		return nil, apperrors.Validation("password", "password must be at least 6 characters")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if !models.ValidRole(role) || role == models.RoleAdmin {
		return nil, apperrors.Validation("role", "role must be customer, agent or staff")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &models.UserProfile{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  hash,
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Role:      role,
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", p.ID), zap.String("role", p.Role))
	return s.session(p)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	p, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if apperrors.IsNotFound(err) {
		return nil, apperrors.Unauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPasswordHash(req.Password, p.Password) {
		return nil, apperrors.Unauthenticated("invalid email or password")
	}
	return s.session(p)
}

func (s *Service) session(p *models.UserProfile) (*Session, error) {
	token, err := s.tokens.Generate(p.ID, p.Email, p.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Profile: p}, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.repo.Get(ctx, userID)
}

// Update changes the caller's own editable fields. Role and email are fixed.
func (s *Service) Update(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.UserProfile, error) {
	if upd.Empty() {
		return nil, apperrors.Validation("profile", "nothing to update")
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperrors.Validation("name", "name cannot be empty")
		}
		upd.Name = &name
	}
	if upd.Phone != nil {
		phone := strings.TrimSpace(*upd.Phone)
		upd.Phone = &phone
	}
	return s.repo.Update(ctx, userID, upd, s.now().UTC())
}

func (s *Service) SetAvatar(ctx context.Context, userID, url string) (*models.UserProfile, error) {
	return s.repo.Update(ctx, userID, models.ProfileUpdate{AvatarURL: &url}, s.now().UTC())
}

func (s *Service) ListByRole(ctx context.Context, roles ...string) ([]models.UserProfile, error) {
	return s.repo.ListByRole(ctx, roles...)
}
