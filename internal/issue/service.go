// internal/issue/service.go
package issue

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/shipment"
)

const maxDescription = 1000

type Filter struct {
	UserID     string
	ShipmentID string
	Status     string
}

func (f Filter) Match(i models.Issue) bool {
	if f.UserID != "" && i.UserID != f.UserID {
		return false
	}
	if f.ShipmentID != "" && i.ShipmentID != f.ShipmentID {
		return false
	}
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	return true
}

type Repository interface {
	Insert(ctx context.Context, i *models.Issue) error
	Get(ctx context.Context, id string) (*models.Issue, error)
	// List returns matching issues newest first.
	List(ctx context.Context, f Filter) ([]models.Issue, error)
	// Resolve fails with a conflict when the issue is not open.
	Resolve(ctx context.Context, id, by string, at time.Time) error
}

type ShipmentLookup interface {
	Get(ctx context.Context, id string) (*models.Shipment, error)
}

type Notifier interface {
	IssueReported(ctx context.Context, i models.Issue)
	IssueResolved(ctx context.Context, i models.Issue)
}

type ReportRequest struct {
	ShipmentID  string `json:"shipment_id" binding:"required"`
	IssueType   string `json:"issue_type" binding:"required"`
	Description string `json:"description"`
}

type Service struct {
	repo      Repository
	shipments ShipmentLookup
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, shipments ShipmentLookup, notifier Notifier, log *zap.Logger) *Service {
	return &Service{repo: repo, shipments: shipments, notifier: notifier, log: log, now: time.Now}
}

// Report files an issue against one of the customer's own shipments.
func (s *Service) Report(ctx context.Context, actor shipment.Actor, req ReportRequest) (*models.Issue, error) {
	if actor.Role != models.RoleCustomer {
		return nil, apperrors.Forbidden("only customers can report issues")
	}
	if !slices.Contains(models.IssueTypes, req.IssueType) {
		return nil, apperrors.Validation("issue_type", "must be one of "+strings.Join(models.IssueTypes, ", "))
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, apperrors.Validation("description", "please describe the problem")
	}
	if utf8.RuneCountInString(desc) > maxDescription {
		return nil, apperrors.Validation("description", "description is too long")
	}

	sh, err := s.shipments.Get(ctx, req.ShipmentID)
	if err != nil {
		return nil, err
	}
	if sh.CustomerID != actor.ID {
		return nil, apperrors.Forbidden("shipment " + sh.ID + " belongs to another customer")
	}

	i := models.Issue{
		ID:          uuid.NewString(),
		ShipmentID:  sh.ID,
		UserID:      actor.ID,
		IssueType:   req.IssueType,
		Description: desc,
		Status:      models.IssueOpen,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, &i); err != nil {
		return nil, err
	}
	s.log.Info("issue reported",
		zap.String("issue_id", i.ID),
		zap.String("shipment_id", i.ShipmentID),
		zap.String("type", i.IssueType),
	)
	if s.notifier != nil {
		s.notifier.IssueReported(ctx, i)
	}
	return &i, nil
}

func (s *Service) Resolve(ctx context.Context, actor shipment.Actor, id string) (*models.Issue, error) {
	if actor.Role != models.RoleStaff && actor.Role != models.RoleAdmin {
		return nil, apperrors.Forbidden("only staff can resolve issues")
	}
	if err := s.repo.Resolve(ctx, id, actor.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	i, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.IssueResolved(ctx, *i)
	}
	return i, nil
}

// List scopes customers to their own issues; staff see everything.
func (s *Service) List(ctx context.Context, actor shipment.Actor, f Filter) ([]models.Issue, error) {
	switch actor.Role {
	case models.RoleCustomer:
		f.UserID = actor.ID
	case models.RoleStaff, models.RoleAdmin:
	default:
		return nil, apperrors.Forbidden("issues are not visible to " + actor.Role)
	}
	return s.repo.List(ctx, f)
}
