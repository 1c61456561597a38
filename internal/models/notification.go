package models

import "time"

const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
)

type Notification struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"userId" json:"user_id"`
	Title      string    `bson:"title" json:"title"`
	Message    string    `bson:"message" json:"message"`
	Type       string    `bson:"type" json:"type"`
	Read       bool      `bson:"read" json:"read"`
	ShipmentID string    `bson:"shipmentId,omitempty" json:"shipment_id,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"created_at"`
}
