package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/geocode"
)

type GeocodeHandler struct {
	Geocoder *geocode.Geocoder
}

// ReverseGeocode always answers with a label; lookup failures fall back to
// the formatted coordinates.
func (h *GeocodeHandler) ReverseGeocode(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		respondError(c, apperrors.Validation("lat", "lat and lng must be valid coordinates"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lat":   lat,
		"lng":   lng,
		"label": h.Geocoder.Reverse(c.Request.Context(), lat, lng),
	})
}
