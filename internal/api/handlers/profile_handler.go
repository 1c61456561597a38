// internal/api/handlers/profile_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/profile"
	"shiptrack-api-server/internal/s3"
)

type ProfileHandler struct {
	Profiles       *profile.Service
	Uploader       Uploader
	MaxUploadBytes int64
	Log            *zap.Logger
}

func (h *ProfileHandler) Register(c *gin.Context) {
	var req profile.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.Profiles.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *ProfileHandler) Login(c *gin.Context) {
	var req profile.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.Profiles.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	p, err := h.Profiles.Get(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProfile changes name, phone or address. The role cannot be changed.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.Profiles.Update(c.Request.Context(), actorFrom(c).ID, upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Photo storage is not configured"})
		return
	}
	userID := actorFrom(c).ID

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required in 'avatar' field"})
		return
	}
	if h.MaxUploadBytes > 0 && fileHeader.Size > h.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image is too large"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	defer file.Close()

	url, err := h.Uploader.UploadFile(c.Request.Context(), file, s3.AvatarKey(userID, fileHeader.Filename), fileHeader.Header.Get("Content-Type"))
	if err != nil {
		h.Log.Error("avatar upload failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upload image"})
		return
	}
	p, err := h.Profiles.SetAvatar(c.Request.Context(), userID, url)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
