package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"attendx/internal/apperr"
	"attendx/internal/audit"
	"attendx/internal/auth"
	"attendx/internal/enrollment"
)

func (h *Handler) apply(c *gin.Context) {
	var req struct {
		ProjectID   string   `json:"projectId"`
		TeamMembers []string `json:"teamMembers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request data")
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	if len(req.TeamMembers) == enrollment.TeamSize && strings.TrimSpace(req.TeamMembers[0]) != claims.RollNo {
		respond(c, apperr.Forbidden("The submitting student must be the first team member"))
		return
	}

	res, err := h.Enrollment.Apply(c.Request.Context(), req.ProjectID, req.TeamMembers)
	if err != nil {
		h.countApplication("rejected")
		respond(c, err)
		return
	}
	h.countApplication("accepted")
	h.Events.Publish(c.Request.Context(), audit.TopicApplicationSubmitted, req.ProjectID, map[string]any{
		"teamId":         res.TeamID,
		"members":        req.TeamMembers,
		"remainingSlots": res.RemainingSlots,
	})
	c.JSON(http.StatusCreated, gin.H{"message": "Application submitted successfully!", "teamId": res.TeamID})
}

func (h *Handler) countApplication(outcome string) {
	if h.Metrics != nil {
		h.Metrics.Applications.WithLabelValues(outcome).Inc()
	}
}
