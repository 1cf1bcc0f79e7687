package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxUserID    = "userID"
	ctxPrincipal = "principal"
	ctxToken     = "accessToken"
)

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware resolves the bearer token and stores the principal in the context.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header required"})
			return
		}

		principal, err := authService.Resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
			return
		}

		c.Set(ctxUserID, principal.ID)
		c.Set(ctxPrincipal, principal)
		c.Set(ctxToken, token)
		c.Next()
	}
}

// OptionalAuthMiddleware treats a missing or bad token as anonymous.
func OptionalAuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		principal, err := authService.Resolve(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ctxUserID, principal.ID)
		c.Set(ctxPrincipal, principal)
		c.Set(ctxToken, token)
		c.Next()
	}
}

// RequireStaff rejects callers whose tier cannot open the admin panel. Handlers
// behind it still rely on the services for the authoritative check.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !service.Classify(GetPrincipal(c)).IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "permission denied"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request on the shared zap logger.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if userID := GetUserID(c); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		for _, e := range c.Errors {
			fields = append(fields, zap.NamedError("error", e.Err))
		}

		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// GetUserID extracts user ID from gin context
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		return ""
	}
	return userID.(string)
}

// GetPrincipal returns the resolved principal or nil for anonymous callers.
func GetPrincipal(c *gin.Context) *service.Principal {
	p, exists := c.Get(ctxPrincipal)
	if !exists {
		return nil
	}
	return p.(*service.Principal)
}

func GetAccessToken(c *gin.Context) string {
	token, _ := c.Get(ctxToken)
	s, _ := token.(string)
	return s
}

// RequireUserID returns error if user ID is not in context
func RequireUserID(c *gin.Context) (string, bool) {
	userID := GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "User not authenticated"})
		return "", false
	}
	return userID, true
}
