package handlers

import (
	"net/http"

	"github.com/baiweichihu/26b-website-sub001/internal/api/middleware"
	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Me Handler
// ============================================

type MeHandler struct {
	accessRequestService service.AccessRequestService
	notificationService  service.NotificationService
}

// Get answers for anonymous callers too; the gating map is what views use.
func (h *MeHandler) Get(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	c.JSON(http.StatusOK, models.MeResponse{
		User:         toPrincipalResponse(principal),
		Tier:         string(service.Classify(principal)),
		Capabilities: capabilityMap(principal),
	})
}

// View returns the dashboard state in one authoritative read.
func (h *MeHandler) View(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	history, err := h.accessRequestService.ListByRequester(ctx, userID)
	if err != nil {
		respondError(c, nil, err)
		return
	}
	unread, err := h.notificationService.CountUnread(ctx, userID)
	if err != nil {
		respondError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, models.ViewResponse{
		Status:         latestStatus(history),
		UnreadCount:    unread,
		RequestHistory: toAccessRequestResponses(history),
	})
}
