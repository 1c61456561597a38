package models

import "time"

// Message is append-only. ClientID is the sender's correlation id for
// reconciling an optimistic local entry with the stored one.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	ShipmentID string    `bson:"shipmentId" json:"shipment_id"`
	SenderID   string    `bson:"senderId" json:"sender_id"`
	ReceiverID string    `bson:"receiverId" json:"receiver_id"`
	Content    string    `bson:"content" json:"content"`
	ClientID   string    `bson:"clientId,omitempty" json:"client_id,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"created_at"`
}
