// internal/shipment/transitions.go
package shipment

import "shiptrack-api-server/internal/models"

type Operation string

const (
	OpCreate    Operation = "create"
	OpApprove   Operation = "approve"
	OpAssign    Operation = "assign"
	OpAccept    Operation = "accept"
	OpPickup    Operation = "pickup"
	OpInTransit Operation = "in_transit"
	OpLocation  Operation = "update_location"
	OpDeliver   Operation = "deliver"
	OpReject    Operation = "reject"
)

type rule struct {
	from []models.ShipmentStatus
	to   models.ShipmentStatus
	// idempotent rules may be retried without a caller supplied key: a
	// repeated write can only land the shipment in the same state.
	idempotent bool
}

var rules = map[Operation]rule{
	OpApprove: {
		from:       []models.ShipmentStatus{models.StatusPendingApproval},
		to:         models.StatusApproved,
		idempotent: true,
	},
	OpAssign: {
		from: []models.ShipmentStatus{models.StatusApproved},
		to:   models.StatusAssigned,
	},
	OpAccept: {
		from:       []models.ShipmentStatus{models.StatusAssigned},
		to:         models.StatusAccepted,
		idempotent: true,
	},
	OpPickup: {
		from:       []models.ShipmentStatus{models.StatusAccepted},
		to:         models.StatusPickedUp,
		idempotent: true,
	},
	OpInTransit: {
		from:       []models.ShipmentStatus{models.StatusPickedUp},
		to:         models.StatusInTransit,
		idempotent: true,
	},
	OpDeliver: {
		from: []models.ShipmentStatus{models.StatusInTransit},
		to:   models.StatusDelivered,
	},
	OpReject: {
		from: []models.ShipmentStatus{
			models.StatusPendingApproval,
			models.StatusApproved,
			models.StatusAssigned,
			models.StatusAccepted,
			models.StatusPickedUp,
			models.StatusInTransit,
		},
		to:         models.StatusCancelled,
		idempotent: true,
	},
}

func (r rule) allows(from models.ShipmentStatus) bool {
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

func (r rule) allowed() []string {
	out := make([]string, len(r.from))
	for i, s := range r.from {
		out[i] = string(s)
	}
	return out
}

// CanTransition reports whether any operation moves a shipment from one
// status to the other in a single step.
func CanTransition(from, to models.ShipmentStatus) bool {
	for _, r := range rules {
		if r.to == to && r.allows(from) {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable in one step from s.
func NextStatuses(s models.ShipmentStatus) []models.ShipmentStatus {
	var out []models.ShipmentStatus
	for _, to := range models.AllStatuses {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}
