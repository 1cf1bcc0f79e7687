package handlers

import (
	"net/http"

	"github.com/baiweichihu/26b-website-sub001/internal/api/middleware"
	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ============================================
// Admin Handler
// ============================================

type AdminHandler struct {
	adminService service.AdminService
	sessions     SessionCloser
	logger       *zap.Logger
}

func (h *AdminHandler) List(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	admins, err := h.adminService.ListAdmins(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]*models.PrincipalResponse, len(admins))
	for i, p := range admins {
		response[i] = toPrincipalResponse(p)
	}
	c.JSON(http.StatusOK, response)
}

func (h *AdminHandler) Appoint(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.AppointAdminRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
	}

	admin, err := h.adminService.AppointAdmin(c.Request.Context(), userID, c.Param("id"), service.AdminPermissions{
		CanManageJournal: req.CanManageJournal,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.dropSockets(admin.ID)
	c.JSON(http.StatusOK, toPrincipalResponse(admin))
}

func (h *AdminHandler) Remove(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	removed, err := h.adminService.RemoveAdmin(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.dropSockets(removed.ID)
	c.JSON(http.StatusOK, toPrincipalResponse(removed))
}

func (h *AdminHandler) UpdatePermissions(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.AdminPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	admin, err := h.adminService.UpdateAdminPermissions(c.Request.Context(), userID, c.Param("id"), service.AdminPermissions{
		CanManageJournal: *req.CanManageJournal,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toPrincipalResponse(admin))
}

func (h *AdminHandler) PublishAnnouncement(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	audience := make([]types.IdentityType, len(req.Audience))
	for i, a := range req.Audience {
		audience[i] = types.IdentityType(a)
	}

	delivered, err := h.adminService.PublishAnnouncement(c.Request.Context(), userID, service.Announcement{
		Title:    req.Title,
		Content:  req.Content,
		Audience: audience,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.AnnouncementResponse{Delivered: delivered})
}

// dropSockets forces the member's realtime clients to reconnect so their
// topic rights follow the new role.
func (h *AdminHandler) dropSockets(userID string) {
	if h.sessions != nil {
		h.sessions.DisconnectUser(userID)
	}
}
