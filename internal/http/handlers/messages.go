package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omnidesk/backend/internal/routing"
)

// MessageRequest is the payload channel adapters post when a message is
// received from or sent to a lead.
type MessageRequest struct {
	TenantID     string     `json:"tenantId" validate:"required"`
	LeadID       string     `json:"leadId" validate:"required"`
	ConnectionID *string    `json:"connectionId"`
	UserID       *string    `json:"userId"`
	Content      *string    `json:"content"`
	Timestamp    *time.Time `json:"timestamp"`
}

// @Summary Incoming message hook
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Service-Key header string true "service key"
// @Param body body MessageRequest true "message"
// @Success 202 {object} map[string]any
// @Router /internal/messages/incoming [post]
func (h *Handler) MessageIncoming(c *gin.Context) {
	var req MessageRequest
	if !h.bind(c, &req, false) {
		return
	}
	a := h.Engine.HandleIncomingMessage(c.Request.Context(), routing.IncomingMessage{
		TenantID:     req.TenantID,
		LeadID:       req.LeadID,
		ConnectionID: req.ConnectionID,
		Content:      req.Content,
		Timestamp:    req.Timestamp,
	})
	c.JSON(http.StatusAccepted, gin.H{"attendance": a})
}

// @Summary Outgoing message hook
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Service-Key header string true "service key"
// @Param body body MessageRequest true "message"
// @Success 202 {object} map[string]any
// @Router /internal/messages/outgoing [post]
func (h *Handler) MessageOutgoing(c *gin.Context) {
	var req MessageRequest
	if !h.bind(c, &req, false) {
		return
	}
	a := h.Engine.HandleOutgoingMessage(c.Request.Context(), routing.OutgoingMessage{
		TenantID:     req.TenantID,
		LeadID:       req.LeadID,
		UserID:       req.UserID,
		ConnectionID: req.ConnectionID,
		Content:      req.Content,
		Timestamp:    req.Timestamp,
	})
	c.JSON(http.StatusAccepted, gin.H{"attendance": a})
}
