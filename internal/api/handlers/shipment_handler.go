// internal/api/handlers/shipment_handler.go
package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/profile"
	"shiptrack-api-server/internal/s3"
	"shiptrack-api-server/internal/shipment"
)

const idempotencyHeader = "Idempotency-Key"

type ShipmentHandler struct {
	Shipments      *shipment.Service
	Profiles       *profile.Service
	Uploader       Uploader
	MaxUploadBytes int64
	Log            *zap.Logger
}

// --- Request bodies ---

type RejectRequest struct {
	Reason string `json:"reason"`
}

type AssignAgentRequest struct {
	AgentName string `json:"agentName" binding:"required"`
	AgentID   string `json:"agentId" binding:"required"`
}

type PositionRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

type DeliverRequest struct {
	DeliveryPhotoURL string `json:"deliveryPhotoUrl" binding:"required"`
}

// --- Queries ---

func (h *ShipmentHandler) ListShipments(c *gin.Context) {
	f := shipment.Filter{
		Status:     models.ShipmentStatus(c.Query("status")),
		Query:      c.Query("q"),
		ActiveOnly: c.Query("active") == "true",
	}
	if f.Status != "" && !f.Status.Valid() {
		respondError(c, apperrors.Validation("status", "unknown status "+string(f.Status)))
		return
	}
	list, err := h.Shipments.List(c.Request.Context(), actorFrom(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Shipment{}
	}
	c.JSON(http.StatusOK, gin.H{"shipments": list, "count": len(list)})
}

func (h *ShipmentHandler) GetStats(c *gin.Context) {
	stats, err := h.Shipments.Stats(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ShipmentHandler) GetShipment(c *gin.Context) {
	sh, err := h.Shipments.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

func (h *ShipmentHandler) GetHistory(c *gin.Context) {
	entries, err := h.Shipments.History(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment_id": c.Param("id"), "history": entries})
}

// GetAgentTasks lists the calling agent's unfinished shipments.
func (h *ShipmentHandler) GetAgentTasks(c *gin.Context) {
	list, err := h.Shipments.AgentTasks(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Shipment{}
	}
	c.JSON(http.StatusOK, gin.H{"shipments": list, "count": len(list)})
}

func (h *ShipmentHandler) GetDeliveryProof(c *gin.Context) {
	p, err := h.Shipments.LatestDeliveryProof(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// --- Mutations ---

func (h *ShipmentHandler) CreateShipment(c *gin.Context) {
	var req shipment.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	actor := actorFrom(c)
	if p, err := h.Profiles.Get(c.Request.Context(), actor.ID); err == nil {
		actor.Name, actor.Phone = p.Name, p.Phone
	} else if !apperrors.IsNotFound(err) {
		respondError(c, err)
		return
	}

	sh, err := h.Shipments.CreateShipment(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sh)
}

func (h *ShipmentHandler) ApproveShipment(c *gin.Context) {
	h.respondShipment(c)(h.Shipments.ApproveShipment(c.Request.Context(), actorFrom(c), c.Param("id")))
}

func (h *ShipmentHandler) RejectShipment(c *gin.Context) {
	var req RejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	h.respondShipment(c)(h.Shipments.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason))
}

func (h *ShipmentHandler) AssignAgent(c *gin.Context) {
	var req AssignAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondShipment(c)(h.Shipments.AssignAgent(c.Request.Context(), actorFrom(c), c.Param("id"),
		req.AgentName, req.AgentID, c.GetHeader(idempotencyHeader)))
}

func (h *ShipmentHandler) AcceptRequest(c *gin.Context) {
	h.respondShipment(c)(h.Shipments.AcceptRequest(c.Request.Context(), actorFrom(c), c.Param("id")))
}

func (h *ShipmentHandler) ConfirmPickup(c *gin.Context) {
	h.respondShipment(c)(h.Shipments.ConfirmPickup(c.Request.Context(), actorFrom(c), c.Param("id")))
}

// MarkInTransit takes an optional starting position.
func (h *ShipmentHandler) MarkInTransit(c *gin.Context) {
	var pos *shipment.Position
	if c.Request.ContentLength > 0 {
		var req PositionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		pos = &shipment.Position{Lat: *req.Lat, Lng: *req.Lng}
	}
	h.respondShipment(c)(h.Shipments.MarkInTransit(c.Request.Context(), actorFrom(c), c.Param("id"), pos))
}

func (h *ShipmentHandler) MarkDelivered(c *gin.Context) {
	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondShipment(c)(h.Shipments.MarkDelivered(c.Request.Context(), actorFrom(c), c.Param("id"),
		req.DeliveryPhotoURL, c.GetHeader(idempotencyHeader)))
}

func (h *ShipmentHandler) UpdateLocation(c *gin.Context) {
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	if err := h.Shipments.UpdateCurrentLocation(c.Request.Context(), actorFrom(c), id, *req.Lat, *req.Lng); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "shipment_id": id, "lat": *req.Lat, "lng": *req.Lng})
}

// UploadDeliveryPhoto stores the agent's proof photo and returns its URL.
// The shipment is marked delivered by a separate call with that URL.
func (h *ShipmentHandler) UploadDeliveryPhoto(c *gin.Context) {
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Photo storage is not configured"})
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)
	id := c.Param("id")

	if _, err := h.Shipments.CheckDeliverable(ctx, actor, id); err != nil {
		respondError(c, err)
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo file is required in 'photo' field"})
		return
	}
	if h.MaxUploadBytes > 0 && fileHeader.Size > h.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Photo is too large"})
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only image uploads are accepted"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	key := s3.DeliveryPhotoKey(id, fileHeader.Filename, time.Now())
	url, err := h.Uploader.UploadFile(ctx, bytes.NewReader(data), key, contentType)
	if err != nil {
		h.Log.Error("delivery photo upload failed", zap.String("shipment_id", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upload photo"})
		return
	}

	proof, err := h.Shipments.RecordDeliveryProof(ctx, actor, id, url, hash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"deliveryPhotoUrl": url, "photoHash": hash, "proof": proof})
}

func (h *ShipmentHandler) respondShipment(c *gin.Context) func(*models.Shipment, error) {
	return func(sh *models.Shipment, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sh)
	}
}
