package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shiptrack-api-server/internal/messaging"
	"shiptrack-api-server/internal/models"
)

type MessageHandler struct {
	Messages *messaging.Channel
}

func (h *MessageHandler) FetchMessages(c *gin.Context) {
	list, err := h.Messages.Fetch(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": list})
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req messaging.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.Messages.Send(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}
