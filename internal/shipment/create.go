// internal/shipment/create.go
package shipment

import (
	"strings"

	"shiptrack-api-server/internal/apperrors"
)

const (
	PickupOffice = "office"
	PickupDoor   = "pickup"
)

// Flat fares, base plus service fee, by pickup type.
const (
	FareOffice = "₵65.55"
	FarePickup = "₵74.75"
)

const (
	defaultOriginCity = "Accra"
	officeOriginCity  = "Accra Office"
)

// CreateRequest is the customer's booking form.
type CreateRequest struct {
	ItemName           string   `json:"itemName"`
	Weight             string   `json:"weight"`
	PickupType         string   `json:"pickupType"`
	PickupAddress      string   `json:"pickupAddress"`
	OriginCity         string   `json:"originCity"`
	FromLat            *float64 `json:"fromLat"`
	FromLng            *float64 `json:"fromLng"`
	DestinationCity    string   `json:"destinationCity"`
	DestinationAddress string   `json:"destinationAddress"`
	ToLat              *float64 `json:"toLat"`
	ToLng              *float64 `json:"toLng"`
	RecipientName      string   `json:"recipientName"`
	RecipientPhone     string   `json:"recipientPhone"`
	CustomerName       string   `json:"customerName"`
	CustomerPhone      string   `json:"customerPhone"`
}

// Validate reports the first missing field in form order.
func (r CreateRequest) Validate() error {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch {
	case blank(r.ItemName):
		return apperrors.Validation("itemName", "Item Name is required")
	case blank(r.Weight):
		return apperrors.Validation("weight", "Weight is required")
	}
	switch r.PickupType {
	case PickupOffice, "":
	case PickupDoor:
		if blank(r.PickupAddress) {
			return apperrors.Validation("pickupAddress", "Pickup Address is required")
		}
	default:
		return apperrors.Validation("pickupType", "Pickup Type must be office or pickup")
	}
	switch {
	case blank(r.DestinationCity):
		return apperrors.Validation("destinationCity", "Destination City is required")
	case blank(r.DestinationAddress):
		return apperrors.Validation("destinationAddress", "Destination Address is required")
	case blank(r.RecipientName):
		return apperrors.Validation("recipientName", "Recipient Name is required")
	case blank(r.RecipientPhone):
		return apperrors.Validation("recipientPhone", "Recipient Phone is required")
	}
	if err := validCoords("from", r.FromLat, r.FromLng); err != nil {
		return err
	}
	return validCoords("to", r.ToLat, r.ToLng)
}

func (r CreateRequest) pickupType() string {
	if r.PickupType == "" {
		return PickupOffice
	}
	return r.PickupType
}

func (r CreateRequest) originCity() string {
	if c := strings.TrimSpace(r.OriginCity); c != "" {
		return c
	}
	if r.pickupType() == PickupOffice {
		return officeOriginCity
	}
	return defaultOriginCity
}

func (r CreateRequest) weightLabel() string {
	w := strings.TrimSpace(r.Weight)
	if strings.HasSuffix(strings.ToLower(w), "kg") {
		return w
	}
	return w + " kg"
}

func Fare(pickupType string) string {
	if pickupType == PickupDoor {
		return FarePickup
	}
	return FareOffice
}

func validCoords(prefix string, lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return apperrors.Validation(prefix+"Lat", "latitude and longitude must be given together")
	}
	if lat == nil {
		return nil
	}
	return checkPosition(*lat, *lng)
}

func checkPosition(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return apperrors.Validation("lat", "latitude out of range")
	}
	if lng < -180 || lng > 180 {
		return apperrors.Validation("lng", "longitude out of range")
	}
	return nil
}
