package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/baiweichihu/26b-website-sub001/internal/notification"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================
// Admin Service
// ============================================

var errNoNotifier = errors.New("no notification publisher configured")

const (
	maxAnnouncementTitle   = 100
	maxAnnouncementContent = 2000
)

// AdminPermissions are the granular rights an admin holds.
type AdminPermissions struct {
	CanManageJournal bool
}

// Announcement is a system notice fanned out to every matching profile.
// An empty Audience reaches everyone.
type Announcement struct {
	Title    string
	Content  string
	Audience []types.IdentityType
}

// AnnouncementNotifier stores one notification per recipient.
type AnnouncementNotifier interface {
	Notify(ctx context.Context, recipientID string, event notification.Event) (*repository.Notification, error)
}

type AdminService interface {
	ListAdmins(ctx context.Context, actorID string) ([]*Principal, error)
	AppointAdmin(ctx context.Context, actorID, targetID string, perms AdminPermissions) (*Principal, error)
	RemoveAdmin(ctx context.Context, actorID, targetID string) (*Principal, error)
	UpdateAdminPermissions(ctx context.Context, actorID, targetID string, perms AdminPermissions) (*Principal, error)
	// PublishAnnouncement returns how many recipients were notified.
	PublishAnnouncement(ctx context.Context, actorID string, announcement Announcement) (int, error)
}

type adminService struct {
	profileRepo repository.ProfileRepository
	notifier    AnnouncementNotifier
	logger      *zap.Logger
}

func NewAdminService(profiles repository.ProfileRepository, notifier AnnouncementNotifier, logger *zap.Logger) AdminService {
	return &adminService{
		profileRepo: profiles,
		notifier:    notifier,
		logger:      logger.Named("admin"),
	}
}

// superuser loads the actor and requires the superuser tier.
func (s *adminService) superuser(ctx context.Context, actorID string) (*Principal, error) {
	profile, err := s.profileRepo.FindByID(ctx, actorID)
	if err != nil {
		return nil, sentinel.Storage("find profile", err)
	}
	actor := PrincipalFromProfile(profile)
	if Classify(actor) != types.TierSuperuser {
		return nil, ErrPermissionDenied
	}
	return actor, nil
}

func (s *adminService) target(ctx context.Context, targetID string) (*repository.Profile, error) {
	if _, err := uuid.Parse(targetID); err != nil {
		return nil, ErrNotFound
	}
	profile, err := s.profileRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, sentinel.Storage("find profile", err)
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

func (s *adminService) setRole(ctx context.Context, actor *Principal, target *repository.Profile, role types.Role, perms AdminPermissions) (*Principal, error) {
	updated, err := s.profileRepo.UpdateRole(context.WithoutCancel(ctx), target.ID, role, perms.CanManageJournal)
	if err != nil {
		return nil, sentinel.Storage("update role", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	s.logger.Info("admin role changed",
		zap.String("target_id", target.ID),
		zap.String("role", string(role)),
		zap.Bool("can_manage_journal", perms.CanManageJournal),
		zap.String("changed_by", actor.ID),
	)
	return PrincipalFromProfile(updated), nil
}

func (s *adminService) ListAdmins(ctx context.Context, actorID string) ([]*Principal, error) {
	if _, err := s.superuser(ctx, actorID); err != nil {
		return nil, err
	}
	profiles, err := s.profileRepo.FindByRole(ctx, types.RoleAdmin)
	if err != nil {
		return nil, sentinel.Storage("list admins", err)
	}
	admins := make([]*Principal, len(profiles))
	for i, p := range profiles {
		admins[i] = PrincipalFromProfile(p)
	}
	return admins, nil
}

// AppointAdmin promotes a classmate without a role.
func (s *adminService) AppointAdmin(ctx context.Context, actorID, targetID string, perms AdminPermissions) (*Principal, error) {
	actor, err := s.superuser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.target(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role != types.RoleNone {
		return nil, ErrConflict
	}
	if target.IdentityType != types.IdentityClassmate {
		return nil, sentinel.Invalid("identity_type", "only classmates can become admins")
	}
	return s.setRole(ctx, actor, target, types.RoleAdmin, perms)
}

// RemoveAdmin demotes an admin and clears every granular right. Superusers
// cannot be removed this way.
func (s *adminService) RemoveAdmin(ctx context.Context, actorID, targetID string) (*Principal, error) {
	actor, err := s.superuser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.target(ctx, targetID)
	if err != nil {
		return nil, err
	}
	switch target.Role {
	case types.RoleSuperuser:
		return nil, ErrPermissionDenied
	case types.RoleAdmin:
	default:
		return nil, ErrNotFound
	}
	return s.setRole(ctx, actor, target, types.RoleNone, AdminPermissions{})
}

func (s *adminService) UpdateAdminPermissions(ctx context.Context, actorID, targetID string, perms AdminPermissions) (*Principal, error) {
	actor, err := s.superuser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.target(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role != types.RoleAdmin {
		return nil, ErrNotFound
	}
	return s.setRole(ctx, actor, target, types.RoleAdmin, perms)
}

// PublishAnnouncement notifies each recipient separately. A failed recipient
// is logged and skipped; the call only fails when nobody was reached.
func (s *adminService) PublishAnnouncement(ctx context.Context, actorID string, announcement Announcement) (int, error) {
	actor, err := s.superuser(ctx, actorID)
	if err != nil {
		return 0, err
	}

	title := strings.TrimSpace(announcement.Title)
	content := strings.TrimSpace(announcement.Content)
	switch {
	case title == "":
		return 0, sentinel.Invalid("title", "title is required")
	case utf8.RuneCountInString(title) > maxAnnouncementTitle:
		return 0, sentinel.Invalid("title", "title is too long")
	case content == "":
		return 0, sentinel.Invalid("content", "content is required")
	case utf8.RuneCountInString(content) > maxAnnouncementContent:
		return 0, sentinel.Invalid("content", "content is too long")
	}
	for _, t := range announcement.Audience {
		if !types.IsValidIdentityType(string(t)) {
			return 0, sentinel.Invalid("audience", "unknown identity type "+string(t))
		}
	}

	if s.notifier == nil {
		return 0, sentinel.Storage("publish announcement", errNoNotifier)
	}
	recipients, err := s.profileRepo.ListIDs(ctx, announcement.Audience)
	if err != nil {
		return 0, sentinel.Storage("list recipients", err)
	}
	if len(recipients) == 0 {
		return 0, sentinel.Invalid("audience", "no profiles match the audience")
	}

	ctx = context.WithoutCancel(ctx)
	event := notification.Event{
		Type:                types.NotificationSystemAnnouncement,
		Title:               title,
		Content:             content,
		RelatedResourceType: "announcement",
	}

	delivered := 0
	var lastErr error
	for _, id := range recipients {
		event.Payload = map[string]interface{}{"published_by": actor.ID}
		if _, err := s.notifier.Notify(ctx, id, event); err != nil {
			lastErr = err
			s.logger.Warn("announcement not delivered", zap.String("recipient_id", id), zap.Error(err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return 0, lastErr
	}

	s.logger.Info("announcement published",
		zap.String("published_by", actor.ID),
		zap.Int("recipients", len(recipients)),
		zap.Int("delivered", delivered),
	)
	return delivered, nil
}
