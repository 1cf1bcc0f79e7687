package types

import "strings"

// IdentityType is the class relationship a profile declares at signup.
type IdentityType string

const (
	IdentityGuest     IdentityType = "guest"
	IdentityClassmate IdentityType = "classmate"
	IdentityAlumni    IdentityType = "alumni"
)

// Role is the administrative role granted to a profile.
type Role string

const (
	RoleNone      Role = "none"
	RoleAdmin     Role = "admin"
	RoleSuperuser Role = "superuser"
)

// Tier is the coarse permission level derived from identity type and role.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierGuest     Tier = "guest"
	TierMember    Tier = "member"
	TierAdmin     Tier = "admin"
	TierSuperuser Tier = "superuser"
)

// IsStaff reports whether the tier may review access requests.
func (t Tier) IsStaff() bool {
	return t == TierAdmin || t == TierSuperuser
}

// RequestStatus values for journal access requests
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Capability names an action the presentation layer may offer.
type Capability string

const (
	CapSubmitAccessRequest    Capability = "submit_access_request"
	CapApproveOrRejectRequest Capability = "approve_or_reject_request"
	CapViewAdminPanel         Capability = "view_admin_panel"
	CapManageAdminPermissions Capability = "manage_admin_permissions"
	CapPublishAnnouncement    Capability = "publish_announcement"
)

// Notification types
const (
	NotificationAuditResult        = "audit_result"
	NotificationSystemAnnouncement = "system_announcement"
	NotificationWindowEnded        = "window_ended"
)

// Realtime topic prefixes
const (
	TopicNotifications  = "notifications"
	TopicAccessRequests = "access_requests"

	// TopicAllAccessRequests carries hints for every request; staff only.
	TopicAllAccessRequests = "access_requests:all"
)

var ValidIdentityTypes = []IdentityType{
	IdentityGuest, IdentityClassmate, IdentityAlumni,
}

var ValidRoles = []Role{
	RoleNone, RoleAdmin, RoleSuperuser,
}

var AllCapabilities = []Capability{
	CapSubmitAccessRequest, CapApproveOrRejectRequest,
	CapViewAdminPanel, CapManageAdminPermissions, CapPublishAnnouncement,
}

func IsValidIdentityType(t string) bool {
	for _, v := range ValidIdentityTypes {
		if string(v) == t {
			return true
		}
	}
	return false
}

func IsValidRole(r string) bool {
	for _, v := range ValidRoles {
		if string(v) == r {
			return true
		}
	}
	return false
}

// IsDecision reports whether s is a terminal status a reviewer may set.
func IsDecision(s RequestStatus) bool {
	return s == StatusApproved || s == StatusRejected
}

// NotificationTopic is the per-recipient notification channel.
func NotificationTopic(userID string) string {
	return TopicNotifications + ":" + userID
}

// AccessRequestTopic is the per-requester access request channel.
func AccessRequestTopic(userID string) string {
	return TopicAccessRequests + ":" + userID
}

// SplitTopic returns the prefix and owner of a topic such as "notifications:<id>".
func SplitTopic(topic string) (prefix, owner string, ok bool) {
	prefix, owner, ok = strings.Cut(topic, ":")
	if !ok || prefix == "" || owner == "" {
		return "", "", false
	}
	return prefix, owner, true
}
