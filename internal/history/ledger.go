// Package history keeps the per-shipment audit trail. Entries are appended in
// transition order and never rewritten.
package history

import (
	"context"
	"fmt"
	"time"

	"shiptrack-api-server/internal/models"
)

// DateLayout renders entry dates as "YYYY-MM-DD HH:MM".
const DateLayout = "2006-01-02 15:04"

// Location labels used when an entry is not tied to a city.
const LocationInTransit = "In Transit"

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func NewEntry(status models.ShipmentStatus, at time.Time, location, description string) models.ShipmentHistory {
	return models.ShipmentHistory{
		Status:      status,
		Date:        FormatDate(at),
		Location:    location,
		Description: description,
	}
}

// Append is the only mutator of a shipment's ledger.
func Append(s *models.Shipment, entry models.ShipmentHistory) {
	s.History = append(s.History, entry)
}

// Reversed returns a newest-first copy for display. The stored order is
// untouched.
func Reversed(entries []models.ShipmentHistory) []models.ShipmentHistory {
	out := make([]models.ShipmentHistory, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// Verify checks that the ledger is non-empty, that its tail matches the
// shipment's status and that dates never go backwards.
func Verify(s models.Shipment) error {
	if len(s.History) == 0 {
		return fmt.Errorf("shipment %s has an empty history", s.ID)
	}
	last := s.History[len(s.History)-1]
	if last.Status != s.Status {
		return fmt.Errorf("shipment %s is %s but its last history entry is %s", s.ID, s.Status, last.Status)
	}
	var prev time.Time
	for i, e := range s.History {
		at, err := time.Parse(DateLayout, e.Date)
		if err != nil {
			return fmt.Errorf("shipment %s history[%d]: bad date %q", s.ID, i, e.Date)
		}
		if at.Before(prev) {
			return fmt.Errorf("shipment %s history[%d] is older than the entry before it", s.ID, i)
		}
		prev = at
	}
	return nil
}

// Anchor records appended entries in an external tamper-evident store.
type Anchor interface {
	Record(ctx context.Context, shipmentID string, entry models.ShipmentHistory) error
}

type NopAnchor struct{}

func (NopAnchor) Record(context.Context, string, models.ShipmentHistory) error { return nil }
