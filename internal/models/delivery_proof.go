package models

import "time"

// DeliveryProof records an uploaded delivery photo before the shipment is
// marked delivered with it.
type DeliveryProof struct {
	ID         string    `bson:"_id" json:"id"`
	ShipmentID string    `bson:"shipmentId" json:"shipmentId"`
	PhotoURL   string    `bson:"photoUrl" json:"photoUrl"`
	PhotoHash  string    `bson:"photoHash" json:"photoHash"`
	UploadedBy string    `bson:"uploadedBy" json:"uploadedBy"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}
