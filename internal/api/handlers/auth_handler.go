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
// Auth Handler
// ============================================

type AuthHandler struct {
	authService service.AuthService
	sessions    SessionCloser
	logger      *zap.Logger
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	principal, accessToken, refreshToken, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		Nickname:     req.Nickname,
		IdentityType: types.IdentityType(req.IdentityType),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.AuthResponse{
		User:         *toPrincipalResponse(principal),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	principal, accessToken, refreshToken, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		User:         *toPrincipalResponse(principal),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	accessToken, refreshToken, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{AccessToken: accessToken, RefreshToken: refreshToken})
}

// Logout revokes the caller's session and drops their realtime connections.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), middleware.GetAccessToken(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if h.sessions != nil {
		h.sessions.DisconnectUser(userID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}
