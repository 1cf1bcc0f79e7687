package handlers

import (
	"errors"
	"net/http"

	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	Auth          *AuthHandler
	Me            *MeHandler
	AccessRequest *AccessRequestHandler
	Admin         *AdminHandler
	Notification  *NotificationHandler
}

// SessionCloser drops live realtime connections after sign-out.
type SessionCloser interface {
	DisconnectUser(userID string) int
}

// NewHandlers creates all handlers
func NewHandlers(services *service.Services, sessions SessionCloser, logger *zap.Logger) *Handlers {
	return &Handlers{
		Auth:          &AuthHandler{authService: services.Auth, sessions: sessions, logger: logger},
		Me:            &MeHandler{accessRequestService: services.AccessRequest, notificationService: services.Notification},
		AccessRequest: &AccessRequestHandler{accessRequestService: services.AccessRequest, logger: logger},
		Admin:         &AdminHandler{adminService: services.Admin, sessions: sessions, logger: logger},
		Notification:  &NotificationHandler{notificationService: services.Notification},
	}
}

// ============================================
// Error mapping
// ============================================

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAuth), errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "permission denied"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "already handled"})
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrStorage):
		if logger != nil {
			logger.Error("storage failure", zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "storage unavailable, please resubmit"})
	default:
		if logger != nil {
			logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
	}
}

// ============================================
// Response Mappers
// ============================================

func toPrincipalResponse(p *service.Principal) *models.PrincipalResponse {
	if p == nil {
		return nil
	}
	return &models.PrincipalResponse{
		ID:               p.ID,
		Email:            p.Email,
		Nickname:         p.Nickname,
		Avatar:           p.Avatar,
		IdentityType:     string(p.IdentityType),
		Role:             string(p.Role),
		CanManageJournal: p.CanManageJournal,
	}
}

func toAccessRequestResponse(r *repository.AccessRequest) models.AccessRequestResponse {
	return models.AccessRequestResponse{
		ID:                r.ID,
		RequesterID:       r.RequesterID,
		Status:            string(r.Status),
		WindowStart:       r.WindowStart,
		WindowEnd:         r.WindowEnd,
		Reason:            r.Reason,
		CreatedAt:         r.CreatedAt,
		HandledAt:         r.HandledAt,
		HandledBy:         r.HandledBy,
		RequesterNickname: r.RequesterNickname,
		RequesterEmail:    r.RequesterEmail,
	}
}

func toAccessRequestResponses(requests []*repository.AccessRequest) []models.AccessRequestResponse {
	response := make([]models.AccessRequestResponse, len(requests))
	for i, r := range requests {
		response[i] = toAccessRequestResponse(r)
	}
	return response
}

func toNotificationResponse(n *repository.Notification) models.NotificationResponse {
	return models.NotificationResponse{
		ID:                  n.ID,
		Type:                n.Type,
		Title:               n.Title,
		Content:             n.Content,
		RelatedResourceType: n.RelatedResourceType,
		RelatedResourceID:   n.RelatedResourceID,
		Payload:             n.Payload,
		IsRead:              n.IsRead,
		CreatedAt:           n.CreatedAt,
	}
}

func capabilityMap(p *service.Principal) map[string]bool {
	caps := service.Capabilities(p)
	out := make(map[string]bool, len(caps))
	for c, ok := range caps {
		out[string(c)] = ok
	}
	return out
}

// latestStatus is the status of the newest request, or "none".
func latestStatus(history []*repository.AccessRequest) string {
	if len(history) == 0 {
		return "none"
	}
	return string(history[0].Status)
}
