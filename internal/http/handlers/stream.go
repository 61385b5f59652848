package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const streamKeepAlive = 25 * time.Second

// @Summary Attendance event stream
// @Description Server-sent events for the caller's tenant
// @Tags attendances
// @Produce text/event-stream
// @Param token query string false "access token when headers cannot be set"
// @Param tenantId query string false "must match the token tenant"
// @Router /api/attendances/stream [get]
func (h *Handler) Stream(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	if t := c.Query("tenantId"); t != "" && t != ac.TenantID {
		writeError(c, http.StatusForbidden, "TENANT_MISMATCH", "Tenant does not match credentials", nil)
		return
	}

	sub := h.Hub.Subscribe(ac.TenantID)
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"tenantId": ac.TenantID})
	c.Writer.Flush()

	ping := time.NewTicker(streamKeepAlive)
	defer ping.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-ping.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
	h.Logger.Debug().Str("tenant_id", ac.TenantID).Str("user_id", ac.UserID()).Msg("stream closed")
}
