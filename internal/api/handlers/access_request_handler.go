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
// Access Request Handler
// ============================================

type AccessRequestHandler struct {
	accessRequestService service.AccessRequestService
	logger               *zap.Logger
}

func (h *AccessRequestHandler) Submit(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.SubmitAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	created, err := h.accessRequestService.Submit(c.Request.Context(), userID, service.AccessRequestCandidate{
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, toAccessRequestResponse(created))
}

func (h *AccessRequestHandler) ListMine(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	requests, err := h.accessRequestService.ListByRequester(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toAccessRequestResponses(requests))
}

func (h *AccessRequestHandler) Active(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	req, err := h.accessRequestService.HasActiveAccess(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := models.ActiveAccessResponse{Active: req != nil}
	if req != nil {
		r := toAccessRequestResponse(req)
		resp.Request = &r
	}
	c.JSON(http.StatusOK, resp)
}

// ListForReview serves the admin queue, optionally filtered by ?status=.
func (h *AccessRequestHandler) ListForReview(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	requests, err := h.accessRequestService.ListForReview(c.Request.Context(), userID, types.RequestStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toAccessRequestResponses(requests))
}

func (h *AccessRequestHandler) Approve(c *gin.Context) {
	h.transition(c, types.StatusApproved)
}

func (h *AccessRequestHandler) Reject(c *gin.Context) {
	h.transition(c, types.StatusRejected)
}

func (h *AccessRequestHandler) transition(c *gin.Context, status types.RequestStatus) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	updated, err := h.accessRequestService.Transition(c.Request.Context(), c.Param("id"), status, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toAccessRequestResponse(updated))
}
