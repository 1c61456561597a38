// internal/database/seeder.go
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/auth"
	"shiptrack-api-server/internal/history"
	"shiptrack-api-server/internal/models"
)

// DemoPassword is set on every seeded account.
const DemoPassword = "shiptrack123"

type ProfileStore interface {
	Insert(ctx context.Context, p *models.UserProfile) error
}

type ShipmentStore interface {
	Insert(ctx context.Context, s *models.Shipment) error
	RaiseCounter(ctx context.Context, n int64) error
}

type demoShipment struct {
	id, customerID, customerName string
	from, to                     string
	status                       models.ShipmentStatus
	agent                        *models.UserProfile
	price, date, description     string
}

var (
	agentKofi = &models.UserProfile{ID: "AGT001", Email: "kofi.boateng@shiptrack.local", Name: "Kofi Boateng", Phone: "+233 20 555 0123", Role: models.RoleAgent}
	agentYaw  = &models.UserProfile{ID: "AGT002", Email: "yaw.addo@shiptrack.local", Name: "Yaw Addo", Phone: "+233 20 555 0124", Role: models.RoleAgent}
)

var demoProfiles = []*models.UserProfile{
	agentKofi,
	agentYaw,
	{ID: "staff-1", Email: "staff@shiptrack.local", Name: "Operations Desk", Phone: "+233 30 200 0000", Role: models.RoleStaff},
	{ID: "admin-1", Email: "admin@shiptrack.local", Name: "ShipTrack Admin", Role: models.RoleAdmin},
	{ID: "cust-1", Email: "kwame.mensah@shiptrack.local", Name: "Kwame Mensah", Role: models.RoleCustomer},
	{ID: "cust-2", Email: "abena.osei@shiptrack.local", Name: "Abena Osei", Role: models.RoleCustomer},
	{ID: "cust-3", Email: "kojo.asante@shiptrack.local", Name: "Kojo Asante", Role: models.RoleCustomer},
	{ID: "cust-4", Email: "ama.darko@shiptrack.local", Name: "Ama Darko", Role: models.RoleCustomer},
	{ID: "cust-5", Email: "samuel.appiah@shiptrack.local", Name: "Samuel Appiah", Role: models.RoleCustomer},
}

var demoShipments = []demoShipment{
	{"SHP001", "cust-1", "Kwame Mensah", "Accra", "Kumasi", models.StatusPendingApproval, nil, "₵75.00", "2026-01-18", "Electronics"},
	{"SHP002", "cust-2", "Abena Osei", "Tamale", "Takoradi", models.StatusApproved, nil, "₵120.00", "2026-01-17", "Documents"},
	{"SHP003", "cust-3", "Kojo Asante", "Tema", "Cape Coast", models.StatusAssigned, agentKofi, "₵65.50", "2026-01-18", "Clothing"},
	{"SHP004", "cust-4", "Ama Darko", "Kumasi", "Sunyani", models.StatusInTransit, agentYaw, "₵90.00", "2026-01-16", "Spare Parts"},
	{"SHP005", "cust-5", "Samuel Appiah", "Takoradi", "Accra", models.StatusDelivered, agentKofi, "₵55.00", "2026-01-15", "Books"},
}

// Seed inserts the demo accounts and shipments. Records that already exist
// are left alone, so it is safe to run on every start.
func Seed(ctx context.Context, profiles ProfileStore, shipments ShipmentStore, log *zap.Logger) error {
	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return err
	}

	created := 0
	for _, p := range demoProfiles {
		rec := *p
		rec.Password = hash
		rec.CreatedAt = time.Now().UTC()
		rec.UpdatedAt = rec.CreatedAt
		if err := profiles.Insert(ctx, &rec); err != nil {
			if apperrors.Is(err, apperrors.CodeConflict) {
				continue
			}
			return fmt.Errorf("seed profile %s: %w", p.ID, err)
		}
		created++
	}

	for _, d := range demoShipments {
		s, err := d.build()
		if err != nil {
			return err
		}
		if err := shipments.Insert(ctx, &s); err != nil {
			if apperrors.Is(err, apperrors.CodeConflict) {
				continue
			}
			return fmt.Errorf("seed shipment %s: %w", d.id, err)
		}
		created++
	}

	if err := shipments.RaiseCounter(ctx, int64(len(demoShipments))); err != nil {
		return fmt.Errorf("raise shipment counter: %w", err)
	}

	if created == 0 {
		log.Info("Demo data already present. Seeding skipped.")
	} else {
		log.Info("Demo data seeded", zap.Int("records", created))
	}
	return nil
}

// lifecycle is the path a seeded shipment walked to reach its status.
var lifecycle = []struct {
	status models.ShipmentStatus
	desc   string
}{
	{models.StatusPendingApproval, "Shipment created"},
	{models.StatusApproved, "Approved by staff"},
	{models.StatusAssigned, "Agent %s assigned"},
	{models.StatusAccepted, "Request accepted by agent"},
	{models.StatusPickedUp, "Package picked up by agent"},
	{models.StatusInTransit, "Package is on the way"},
	{models.StatusDelivered, "Package delivered to recipient"},
}

func (d demoShipment) build() (models.Shipment, error) {
	day, err := time.Parse("2006-01-02", d.date)
	if err != nil {
		return models.Shipment{}, fmt.Errorf("seed shipment %s: %w", d.id, err)
	}
	at := day.Add(8 * time.Hour)

	s := models.Shipment{
		ID:              d.id,
		CustomerID:      d.customerID,
		CustomerName:    d.customerName,
		FromCity:        d.from,
		ToCity:          d.to,
		Price:           d.price,
		Description:     d.description,
		Weight:          "5 kg",
		PickupType:      "office",
		DeliveryAddress: "Main Street, " + d.to,
		RecipientName:   d.customerName,
		RecipientPhone:  "+233 24 000 " + strings.TrimPrefix(d.id, "SHP") + "0",
		Status:          d.status,
		Date:            d.date,
		CreatedAt:       at,
	}
	if d.agent != nil {
		s.AgentName, s.AgentID, s.AgentPhone = d.agent.Name, d.agent.ID, d.agent.Phone
	}

	for _, step := range lifecycle {
		location, desc := d.from, step.desc
		switch step.status {
		case models.StatusAssigned:
			desc = fmt.Sprintf(desc, s.AgentName)
		case models.StatusInTransit:
			location = history.LocationInTransit
		case models.StatusDelivered:
			location = d.to
		}
		history.Append(&s, history.NewEntry(step.status, at, location, desc))
		if step.status == d.status {
			break
		}
		at = at.Add(time.Hour)
	}
	s.UpdatedAt = at
	if d.status == models.StatusDelivered {
		s.DeliveryPhotoURL = "https://placehold.co/600x400?text=" + d.id
	}
	return s, history.Verify(s)
}
