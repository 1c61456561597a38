package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shiptrack-api-server/internal/issue"
	"shiptrack-api-server/internal/models"
)

type IssueHandler struct {
	Issues *issue.Service
}

func (h *IssueHandler) ReportIssue(c *gin.Context) {
	var req issue.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	i, err := h.Issues.Report(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, i)
}

func (h *IssueHandler) ListIssues(c *gin.Context) {
	f := issue.Filter{ShipmentID: c.Query("shipment_id"), Status: c.Query("status")}
	list, err := h.Issues.List(c.Request.Context(), actorFrom(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Issue{}
	}
	c.JSON(http.StatusOK, gin.H{"issues": list})
}

func (h *IssueHandler) ResolveIssue(c *gin.Context) {
	i, err := h.Issues.Resolve(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, i)
}
