package models

import "time"

const (
	IssueOpen     = "open"
	IssueResolved = "resolved"
)

// IssueTypes are the categories offered to customers.
var IssueTypes = []string{"delayed", "damaged", "lost", "wrong_address", "agent_conduct", "other"}

type Issue struct {
	ID          string     `bson:"_id" json:"id"`
	ShipmentID  string     `bson:"shipmentId" json:"shipment_id"`
	UserID      string     `bson:"userId" json:"user_id"`
	IssueType   string     `bson:"issueType" json:"issue_type"`
	Description string     `bson:"description" json:"description"`
	Status      string     `bson:"status" json:"status"`
	ResolvedBy  string     `bson:"resolvedBy,omitempty" json:"resolved_by,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
	ResolvedAt  *time.Time `bson:"resolvedAt,omitempty" json:"resolved_at,omitempty"`
}
