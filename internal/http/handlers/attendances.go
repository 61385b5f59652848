package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/routing"
)

type ClaimRequest struct {
	Notes        string `json:"notes" validate:"max=2000"`
	DepartmentID string `json:"departmentId"`
}

type TransferRequest struct {
	TargetUserID       string `json:"targetUserId"`
	TargetDepartmentID string `json:"targetDepartmentId"`
	Notes              string `json:"notes" validate:"max=2000"`
	Priority           string `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
}

type CloseRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type PriorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=LOW NORMAL HIGH"`
}

func parseFilters(c *gin.Context) (routing.ListFilters, bool) {
	var f routing.ListFilters
	if v := c.Query("status"); v != "" {
		s, err := models.ParseStatus(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_FILTER", "Invalid status", err.Error())
			return f, false
		}
		f.Status = &s
	}
	if v := c.Query("priority"); v != "" {
		p, err := models.ParsePriority(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_FILTER", "Invalid priority", err.Error())
			return f, false
		}
		f.Priority = &p
	}
	if v := c.Query("urgent"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_FILTER", "Invalid urgent flag", err.Error())
			return f, false
		}
		f.Urgent = &b
	}
	f.DepartmentID = c.Query("departmentId")
	f.AssignedUserID = c.Query("assignedUserId")
	f.Search = c.Query("search")
	f.LeadID = c.Query("leadId")
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(routing.DefaultPageSize)))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return f, true
}

// @Summary List attendances
// @Tags attendances
// @Produce json
// @Param status query string false "OPEN|IN_PROGRESS|TRANSFERRED|CLOSED"
// @Param priority query string false "LOW|NORMAL|HIGH"
// @Param departmentId query string false "department filter"
// @Param assignedUserId query string false "assignee filter"
// @Param urgent query bool false "urgency filter"
// @Param search query string false "lead name or phone"
// @Param leadId query string false "lead filter"
// @Param limit query int false "page size (max 200)"
// @Param offset query int false "page offset"
// @Success 200 {object} map[string]any
// @Router /api/attendances [get]
func (h *Handler) AttendancesList(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	f, ok := parseFilters(c)
	if !ok {
		return
	}
	items, err := h.Engine.List(c.Request.Context(), ac, f)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": f.Limit, "offset": f.Offset})
}

// @Summary Attendance counters
// @Tags attendances
// @Produce json
// @Success 200 {object} models.Stats
// @Router /api/attendances/stats [get]
func (h *Handler) AttendancesStats(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	f, ok := parseFilters(c)
	if !ok {
		return
	}
	st, err := h.Engine.Stats(c.Request.Context(), ac, f)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary Smart queue
// @Description Next attendances available to the caller
// @Tags attendances
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/attendances/queue [get]
func (h *Handler) SmartQueue(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	items, err := h.Engine.SmartQueue(c.Request.Context(), ac)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Attendance details
// @Tags attendances
// @Produce json
// @Param id path string true "attendance id"
// @Success 200 {object} models.Attendance
// @Router /api/attendances/{id} [get]
func (h *Handler) AttendanceDetails(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	a, err := h.Engine.Get(c.Request.Context(), ac, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Attendance of a lead
// @Tags attendances
// @Produce json
// @Param leadId path string true "lead id"
// @Success 200 {object} models.Attendance
// @Router /api/attendances/by-lead/{leadId} [get]
func (h *Handler) AttendanceByLead(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	a, err := h.Engine.GetByLead(c.Request.Context(), ac, c.Param("leadId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Attendance audit log
// @Tags attendances
// @Produce json
// @Param id path string true "attendance id"
// @Success 200 {object} map[string]any
// @Router /api/attendances/{id}/logs [get]
func (h *Handler) AttendanceLogs(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	logs, err := h.Engine.ListLogs(c.Request.Context(), ac, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

// @Summary Claim attendance
// @Tags attendances
// @Accept json
// @Produce json
// @Param id path string true "attendance id"
// @Param body body ClaimRequest false "claim options"
// @Success 200 {object} models.Attendance
// @Failure 400 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/attendances/{id}/claim [post]
func (h *Handler) Claim(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	var req ClaimRequest
	if !h.bind(c, &req, true) {
		return
	}
	a, err := h.Engine.Claim(c.Request.Context(), ac, c.Param("id"), routing.ClaimInput{Notes: req.Notes, DepartmentID: req.DepartmentID})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Transfer attendance
// @Tags attendances
// @Accept json
// @Produce json
// @Param id path string true "attendance id"
// @Param body body TransferRequest true "target"
// @Success 200 {object} models.Attendance
// @Router /api/attendances/{id}/transfer [post]
func (h *Handler) Transfer(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	var req TransferRequest
	if !h.bind(c, &req, false) {
		return
	}
	in := routing.TransferInput{
		TargetUserID:       req.TargetUserID,
		TargetDepartmentID: req.TargetDepartmentID,
		Notes:              req.Notes,
	}
	if req.Priority != "" {
		p := models.Priority(req.Priority)
		in.Priority = &p
	}
	a, err := h.Engine.Transfer(c.Request.Context(), ac, c.Param("id"), in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Close attendance
// @Tags attendances
// @Accept json
// @Produce json
// @Param id path string true "attendance id"
// @Param body body CloseRequest false "notes"
// @Success 200 {object} models.Attendance
// @Router /api/attendances/{id}/close [post]
func (h *Handler) Close(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	var req CloseRequest
	if !h.bind(c, &req, true) {
		return
	}
	a, err := h.Engine.Close(c.Request.Context(), ac, c.Param("id"), req.Notes)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Update attendance priority
// @Tags attendances
// @Accept json
// @Produce json
// @Param id path string true "attendance id"
// @Param body body PriorityRequest true "priority"
// @Success 200 {object} models.Attendance
// @Router /api/attendances/{id}/priority [patch]
func (h *Handler) UpdatePriority(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	var req PriorityRequest
	if !h.bind(c, &req, false) {
		return
	}
	a, err := h.Engine.UpdatePriority(c.Request.Context(), ac, c.Param("id"), models.Priority(req.Priority))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Open attendances for orphan leads
// @Tags runs
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/attendances/sync-leads [post]
func (h *Handler) SyncLeads(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	summary, err := h.Engine.SyncLeadsWithAttendances(c.Request.Context(), ac)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Repair conversation ownership drift
// @Tags runs
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/attendances/reconcile [post]
func (h *Handler) Reconcile(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	summary, err := h.Engine.ReconcileMirrors(c.Request.Context(), ac)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Latest run
// @Tags runs
// @Produce json
// @Success 200 {object} models.Run
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	run, err := h.Engine.LatestRun(c.Request.Context(), ac)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
