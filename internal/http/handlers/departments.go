package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnidesk/backend/internal/directory"
	"github.com/omnidesk/backend/internal/models"
)

type DepartmentRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
}

type MemberRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"omitempty,oneof=ADMIN MEMBER"`
}

// @Summary List departments
// @Tags departments
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/departments [get]
func (h *Handler) DepartmentsList(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	items, err := h.Directory.List(c.Request.Context(), ac)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Departments of the caller
// @Tags departments
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/departments/mine [get]
func (h *Handler) DepartmentsMine(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	items, err := h.Directory.ListCallerDepartments(c.Request.Context(), ac)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Department details
// @Tags departments
// @Produce json
// @Param id path string true "department id"
// @Success 200 {object} models.Department
// @Router /api/departments/{id} [get]
func (h *Handler) DepartmentDetails(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	d, err := h.Directory.Get(c.Request.Context(), ac, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary Create department
// @Tags departments
// @Accept json
// @Produce json
// @Param body body DepartmentRequest true "department"
// @Success 201 {object} models.Department
// @Router /api/departments [post]
func (h *Handler) DepartmentCreate(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	var req DepartmentRequest
	if !h.bind(c, &req, false) {
		return
	}
	d, err := h.Directory.Create(c.Request.Context(), ac, directory.DepartmentInput{Name: req.Name, Description: req.Description})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// @Summary Update department
// @Tags departments
// @Accept json
// @Produce json
// @Param id path string true "department id"
// @Param body body DepartmentRequest true "department"
// @Success 200 {object} models.Department
// @Router /api/departments/{id} [put]
func (h *Handler) DepartmentUpdate(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	var req DepartmentRequest
	if !h.bind(c, &req, false) {
		return
	}
	d, err := h.Directory.Update(c.Request.Context(), ac, c.Param("id"), directory.DepartmentInput{Name: req.Name, Description: req.Description})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary Delete department
// @Description Open attendances move to the fallback department
// @Tags departments
// @Param id path string true "department id"
// @Success 204
// @Router /api/departments/{id} [delete]
func (h *Handler) DepartmentDelete(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	if err := h.Directory.Delete(c.Request.Context(), ac, c.Param("id")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List department members
// @Tags departments
// @Produce json
// @Param id path string true "department id"
// @Success 200 {object} map[string]any
// @Router /api/departments/{id}/members [get]
func (h *Handler) MembersList(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	items, err := h.Directory.ListMembers(c.Request.Context(), ac, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Add department member
// @Tags departments
// @Accept json
// @Produce json
// @Param id path string true "department id"
// @Param body body MemberRequest true "member"
// @Success 201 {object} models.DepartmentMembership
// @Router /api/departments/{id}/members [post]
func (h *Handler) MemberAdd(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	var req MemberRequest
	if !h.bind(c, &req, false) {
		return
	}
	role := models.MembershipMember
	if req.Role != "" {
		role = models.MembershipRole(req.Role)
	}
	m, err := h.Directory.AddMember(c.Request.Context(), ac, c.Param("id"), req.UserID, role)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// @Summary Remove department member
// @Tags departments
// @Param id path string true "department id"
// @Param userId path string true "user id"
// @Success 204
// @Router /api/departments/{id}/members/{userId} [delete]
func (h *Handler) MemberRemove(c *gin.Context) {
	ac, ok := caller(c)
	if !ok {
		return
	}
	if err := h.Directory.RemoveMember(c.Request.Context(), ac, c.Param("id"), c.Param("userId")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
