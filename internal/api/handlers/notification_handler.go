package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/notification"
)

type NotificationHandler struct {
	Notifications *notification.Dispatcher
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	items, unread, err := h.Notifications.List(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread_count": unread})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	unread, err := h.Notifications.MarkAsRead(c.Request.Context(), actorFrom(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "unread_count": unread})
}

func (h *NotificationHandler) ClearNotifications(c *gin.Context) {
	if err := h.Notifications.ClearNotifications(c.Request.Context(), actorFrom(c).ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "unread_count": 0})
}
