package handlers

import (
	"net/http"

	"github.com/baiweichihu/26b-website-sub001/internal/api/middleware"
	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Notification Handler
// ============================================

type NotificationHandler struct {
	notificationService service.NotificationService
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	unreadOnly := c.Query("unread") == "true"

	notifications, err := h.notificationService.List(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		respondError(c, nil, err)
		return
	}

	response := make([]models.NotificationResponse, len(notifications))
	for i, n := range notifications {
		response[i] = toNotificationResponse(n)
	}

	c.JSON(http.StatusOK, response)
}

func (h *NotificationHandler) Count(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	unread, err := h.notificationService.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, models.NotificationCountResponse{Unread: unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	updated, err := h.notificationService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, models.MarkAllReadResponse{Updated: updated})
}
