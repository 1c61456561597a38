// internal/models/shipment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

type ShipmentStatus string

const (
	StatusPendingApproval ShipmentStatus = "pending_approval"
	StatusApproved        ShipmentStatus = "approved"
	StatusAssigned        ShipmentStatus = "assigned"
	StatusAccepted        ShipmentStatus = "accepted"
	StatusPickedUp        ShipmentStatus = "picked_up"
	StatusInTransit       ShipmentStatus = "in_transit"
	StatusDelivered       ShipmentStatus = "delivered"
	StatusCancelled       ShipmentStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order, cancelled last.
var AllStatuses = []ShipmentStatus{
	StatusPendingApproval,
	StatusApproved,
	StatusAssigned,
	StatusAccepted,
	StatusPickedUp,
	StatusInTransit,
	StatusDelivered,
	StatusCancelled,
}

func (s ShipmentStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s ShipmentStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ActiveStatuses are the statuses in which an agent is working on a shipment.
var ActiveStatuses = []ShipmentStatus{StatusAssigned, StatusAccepted, StatusPickedUp, StatusInTransit}

// Active reports whether an agent is working on the shipment.
func (s ShipmentStatus) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// ShipmentHistory is one ledger entry. Date uses the "YYYY-MM-DD HH:MM" layout.
type ShipmentHistory struct {
	Status      ShipmentStatus `bson:"status" json:"status"`
	Date        string         `bson:"date" json:"date"`
	Location    string         `bson:"location" json:"location"`
	Description string         `bson:"description" json:"description"`
}

type Shipment struct {
	ID         string `bson:"_id" json:"id"`
	CustomerID string `bson:"customerId" json:"customer_id"`

	CustomerName  string `bson:"customerName" json:"customerName"`
	CustomerPhone string `bson:"customerPhone,omitempty" json:"customerPhone,omitempty"`

	FromCity   string   `bson:"fromCity" json:"fromCity"`
	ToCity     string   `bson:"toCity" json:"toCity"`
	FromLat    *float64 `bson:"fromLat,omitempty" json:"fromLat,omitempty"`
	FromLng    *float64 `bson:"fromLng,omitempty" json:"fromLng,omitempty"`
	ToLat      *float64 `bson:"toLat,omitempty" json:"toLat,omitempty"`
	ToLng      *float64 `bson:"toLng,omitempty" json:"toLng,omitempty"`
	CurrentLat *float64 `bson:"currentLat,omitempty" json:"currentLat,omitempty"`
	CurrentLng *float64 `bson:"currentLng,omitempty" json:"currentLng,omitempty"`

	AgentName  string `bson:"agentName,omitempty" json:"agentName,omitempty"`
	AgentID    string `bson:"agentId,omitempty" json:"agentId,omitempty"`
	AgentPhone string `bson:"agentPhone,omitempty" json:"agentPhone,omitempty"`

	Price           string `bson:"price" json:"price"`
	Description     string `bson:"description" json:"description"`
	Weight          string `bson:"weight" json:"weight"`
	PickupType      string `bson:"pickupType,omitempty" json:"pickupType,omitempty"`
	PickupAddress   string `bson:"pickupAddress,omitempty" json:"pickupAddress,omitempty"`
	DeliveryAddress string `bson:"deliveryAddress" json:"deliveryAddress"`
	RecipientName   string `bson:"recipientName" json:"recipientName"`
	RecipientPhone  string `bson:"recipientPhone" json:"recipientPhone"`

	Status           ShipmentStatus    `bson:"status" json:"status"`
	Date             string            `bson:"date" json:"date"`
	History          []ShipmentHistory `bson:"history" json:"history"`
	DeliveryPhotoURL string            `bson:"deliveryPhotoUrl,omitempty" json:"deliveryPhotoUrl,omitempty"`
	RejectionReason  string            `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`

	// RequestKey is the idempotency key of the last keyed transition,
	// written together with it.
	RequestKey string `bson:"requestKey,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// Clone returns a deep copy; pointer coordinates and the history slice are
// not shared with the receiver.
func (s Shipment) Clone() Shipment {
	out := s
	out.FromLat = cloneFloat(s.FromLat)
	out.FromLng = cloneFloat(s.FromLng)
	out.ToLat = cloneFloat(s.ToLat)
	out.ToLng = cloneFloat(s.ToLng)
	out.CurrentLat = cloneFloat(s.CurrentLat)
	out.CurrentLng = cloneFloat(s.CurrentLng)
	out.History = append([]ShipmentHistory(nil), s.History...)
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// ShipmentPatch is the partial update applied by a single write. Nil fields
// are left untouched; AppendHistory is pushed onto the ledger.
type ShipmentPatch struct {
	Status           *ShipmentStatus
	AgentName        *string
	AgentID          *string
	AgentPhone       *string
	CurrentLat       *float64
	CurrentLng       *float64
	DeliveryPhotoURL *string
	RejectionReason  *string
	RequestKey       *string
	AppendHistory    *ShipmentHistory
	UpdatedAt        time.Time
}

// Apply mutates s in place.
func (p ShipmentPatch) Apply(s *Shipment) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.AgentName != nil {
		s.AgentName = *p.AgentName
	}
	if p.AgentID != nil {
		s.AgentID = *p.AgentID
	}
	if p.AgentPhone != nil {
		s.AgentPhone = *p.AgentPhone
	}
	if p.CurrentLat != nil {
		s.CurrentLat = cloneFloat(p.CurrentLat)
	}
	if p.CurrentLng != nil {
		s.CurrentLng = cloneFloat(p.CurrentLng)
	}
	if p.DeliveryPhotoURL != nil {
		s.DeliveryPhotoURL = *p.DeliveryPhotoURL
	}
	if p.RejectionReason != nil {
		s.RejectionReason = *p.RejectionReason
	}
	if p.RequestKey != nil {
		s.RequestKey = *p.RequestKey
	}
	if p.AppendHistory != nil {
		s.History = append(s.History, *p.AppendHistory)
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
}

// SetDoc returns the $set part of the mongo update document.
func (p ShipmentPatch) SetDoc() bson.M {
	set := bson.M{}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.AgentName != nil {
		set["agentName"] = *p.AgentName
	}
	if p.AgentID != nil {
		set["agentId"] = *p.AgentID
	}
	if p.AgentPhone != nil {
		set["agentPhone"] = *p.AgentPhone
	}
	if p.CurrentLat != nil {
		set["currentLat"] = *p.CurrentLat
	}
	if p.CurrentLng != nil {
		set["currentLng"] = *p.CurrentLng
	}
	if p.DeliveryPhotoURL != nil {
		set["deliveryPhotoUrl"] = *p.DeliveryPhotoURL
	}
	if p.RejectionReason != nil {
		set["rejectionReason"] = *p.RejectionReason
	}
	if p.RequestKey != nil {
		set["requestKey"] = *p.RequestKey
	}
	if !p.UpdatedAt.IsZero() {
		set["updatedAt"] = p.UpdatedAt
	}
	return set
}

// Fields returns the changed fields keyed by their JSON names, as carried by
// realtime update events. history is the full ledger after the change.
func (p ShipmentPatch) Fields(after Shipment) map[string]any {
	f := map[string]any{}
	if p.Status != nil {
		f["status"] = string(*p.Status)
	}
	if p.AgentName != nil {
		f["agentName"] = *p.AgentName
	}
	if p.AgentID != nil {
		f["agentId"] = *p.AgentID
	}
	if p.AgentPhone != nil {
		f["agentPhone"] = *p.AgentPhone
	}
	if p.CurrentLat != nil {
		f["currentLat"] = *p.CurrentLat
	}
	if p.CurrentLng != nil {
		f["currentLng"] = *p.CurrentLng
	}
	if p.DeliveryPhotoURL != nil {
		f["deliveryPhotoUrl"] = *p.DeliveryPhotoURL
	}
	if p.RejectionReason != nil {
		f["rejectionReason"] = *p.RejectionReason
	}
	if p.AppendHistory != nil {
		history := make([]any, 0, len(after.History))
		for _, h := range after.History {
			history = append(history, map[string]any{
				"status":      string(h.Status),
				"date":        h.Date,
				"location":    h.Location,
				"description": h.Description,
			})
		}
		f["history"] = history
	}
	if !p.UpdatedAt.IsZero() {
		f["updated_at"] = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return f
}

// ShipmentStats backs the staff and admin dashboards.
type ShipmentStats struct {
	Total    int                    `json:"total"`
	Active   int                    `json:"active"`
	ByStatus map[ShipmentStatus]int `json:"byStatus"`
}
