package models

import "time"

// ============================================
// Auth DTOs
// ============================================

type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	Nickname     string `json:"nickname" binding:"omitempty,max=50"`
	IdentityType string `json:"identityType" binding:"omitempty,oneof=guest classmate alumni"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type AuthResponse struct {
	User         PrincipalResponse `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ============================================
// Principal DTOs
// ============================================

type PrincipalResponse struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Nickname         string  `json:"nickname"`
	Avatar           *string `json:"avatar,omitempty"`
	IdentityType     string  `json:"identityType"`
	Role             string  `json:"role"`
	CanManageJournal bool    `json:"canManageJournal"`
}

// MeResponse is returned for anonymous callers too, with a nil user.
type MeResponse struct {
	User         *PrincipalResponse `json:"user"`
	Tier         string             `json:"tier"`
	Capabilities map[string]bool    `json:"capabilities"`
}

// ViewResponse is the member's read-only dashboard state.
type ViewResponse struct {
	Status         string                  `json:"status"`
	UnreadCount    int                     `json:"unreadCount"`
	RequestHistory []AccessRequestResponse `json:"requestHistory"`
}

// ============================================
// Access Request DTOs
// ============================================

type SubmitAccessRequest struct {
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
	Reason      string `json:"reason"`
}

type AccessRequestResponse struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requesterId"`
	Status      string     `json:"status"`
	WindowStart time.Time  `json:"windowStart"`
	WindowEnd   time.Time  `json:"windowEnd"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"createdAt"`
	HandledAt   *time.Time `json:"handledAt,omitempty"`
	HandledBy   *string    `json:"handledBy,omitempty"`

	RequesterNickname string `json:"requesterNickname,omitempty"`
	RequesterEmail    string `json:"requesterEmail,omitempty"`
}

type ActiveAccessResponse struct {
	Active  bool                   `json:"active"`
	Request *AccessRequestResponse `json:"request,omitempty"`
}

// ============================================
// Notification DTOs
// ============================================

type NotificationResponse struct {
	ID                  string                 `json:"id"`
	Type                string                 `json:"type"`
	Title               string                 `json:"title"`
	Content             string                 `json:"content"`
	RelatedResourceType *string                `json:"relatedResourceType,omitempty"`
	RelatedResourceID   *string                `json:"relatedResourceId,omitempty"`
	Payload             map[string]interface{} `json:"payload,omitempty"`
	IsRead              bool                   `json:"isRead"`
	CreatedAt           time.Time              `json:"createdAt"`
}

type NotificationCountResponse struct {
	Unread int `json:"unread"`
}

type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}

// ============================================
// Admin DTOs
// ============================================

type AppointAdminRequest struct {
	CanManageJournal bool `json:"canManageJournal"`
}

type AdminPermissionsRequest struct {
	CanManageJournal *bool `json:"canManageJournal" binding:"required"`
}

type AnnouncementRequest struct {
	Title    string   `json:"title" binding:"required"`
	Content  string   `json:"content" binding:"required"`
	Audience []string `json:"audience"`
}

type AnnouncementResponse struct {
	Delivered int `json:"delivered"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
