package service

import (
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/config"
	"github.com/baiweichihu/26b-website-sub001/internal/notification"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"go.uber.org/zap"
)

// ============================================
// Services Container
// ============================================

type Services struct {
	Auth          AuthService
	AccessRequest AccessRequestService
	Admin         AdminService
	Notification  NotificationService
	Validator     *AccessRequestValidator
	Publisher     *notification.Service
}

// ServiceDeps contains all dependencies needed to create services
type ServiceDeps struct {
	Config    *config.Config
	Repos     *repository.Repositories
	Publisher *notification.Service
	Mailer    DecisionMailer
	Signaler  AccessRequestSignaler
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewServices(deps *ServiceDeps) *Services {
	validator := NewAccessRequestValidator(deps.Config.MaxAccessWindow, deps.Config.Location())

	var notifier DecisionNotifier
	var welcome WelcomeSender
	var announcer AnnouncementNotifier
	if deps.Publisher != nil {
		notifier = deps.Publisher
		welcome = deps.Publisher
		announcer = deps.Publisher
	}

	return &Services{
		Auth: NewAuthService(deps.Config, deps.Repos.ProfileRepo, deps.Repos.SessionRepo, welcome, deps.Logger),
		AccessRequest: NewAccessRequestService(AccessRequestDeps{
			Requests:  deps.Repos.AccessRequestRepo,
			Profiles:  deps.Repos.ProfileRepo,
			Validator: validator,
			Notifier:  notifier,
			Mailer:    deps.Mailer,
			Signaler:  deps.Signaler,
			Logger:    deps.Logger,
			Now:       deps.Now,
		}),
		Admin:        NewAdminService(deps.Repos.ProfileRepo, announcer, deps.Logger),
		Notification: NewNotificationService(deps.Publisher),
		Validator:    validator,
		Publisher:    deps.Publisher,
	}
}
