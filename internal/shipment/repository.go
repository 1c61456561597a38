// internal/shipment/repository.go
package shipment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"shiptrack-api-server/internal/models"
)

// Repository is the authoritative shipment store.
//
// Update and UpdateLocation are conditional writes: they apply only while
// the stored status equals expected (in_transit for locations). A miss
// returns apperrors NotFound when the id is unknown, or InvalidTransition
// carrying the stored status. Every other failure is an apperrors Transport.
type Repository interface {
	NextID(ctx context.Context) (string, error)
	Insert(ctx context.Context, s *models.Shipment) error
	Get(ctx context.Context, id string) (*models.Shipment, error)
	List(ctx context.Context, f Filter) ([]models.Shipment, error)
	Update(ctx context.Context, id string, expected models.ShipmentStatus, patch models.ShipmentPatch) error
	UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) error
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status     models.ShipmentStatus
	Query      string
	CustomerID string
	AgentID    string
	ActiveOnly bool
}

func (f Filter) Match(s models.Shipment) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.CustomerID != "" && s.CustomerID != f.CustomerID {
		return false
	}
	if f.AgentID != "" && s.AgentID != f.AgentID {
		return false
	}
	if f.ActiveOnly && !s.Status.Active() {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(s.ID), q) ||
			strings.Contains(strings.ToLower(s.CustomerName), q) ||
			strings.Contains(strings.ToLower(s.ToCity), q)
	}
	return true
}

// SortNewestFirst orders by date descending, then creation time, then id.
func SortNewestFirst(list []models.Shipment) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// FormatID renders the n-th shipment id: SHP001, SHP042, SHP1234.
func FormatID(n int64) string {
	return fmt.Sprintf("SHP%03d", n)
}
