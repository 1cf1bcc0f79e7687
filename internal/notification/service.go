package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Signaler pushes change hints to live subscribers of a recipient's topic.
type Signaler interface {
	NotificationChanged(recipientID string, payload map[string]interface{})
}

// Event is the content of a notification before it is persisted.
type Event struct {
	Type                string
	Title               string
	Content             string
	RelatedResourceType string
	RelatedResourceID   string
	Payload             map[string]interface{}
}

// Service is the only writer of notification rows.
type Service struct {
	notificationRepo repository.NotificationRepository
	signaler         Signaler
	logger           *zap.Logger
	now              func() time.Time
}

func NewService(notificationRepo repository.NotificationRepository, logger *zap.Logger) *Service {
	return &Service{
		notificationRepo: notificationRepo,
		logger:           logger.Named("notification"),
		now:              time.Now,
	}
}

func (s *Service) SetSignaler(signaler Signaler) {
	s.signaler = signaler
}

func (s *Service) signal(recipientID string, payload map[string]interface{}) {
	if s.signaler == nil {
		return
	}
	s.signaler.NotificationChanged(recipientID, payload)
}

// Notify persists an unread notification and nudges the recipient's topic.
func (s *Service) Notify(ctx context.Context, recipientID string, event Event) (*repository.Notification, error) {
	if recipientID == "" {
		return nil, sentinel.Invalid("recipient_id", "recipient is required")
	}

	n := &repository.Notification{
		RecipientID: recipientID,
		Type:        event.Type,
		Title:       event.Title,
		Content:     event.Content,
		Payload:     event.Payload,
		IsRead:      false,
	}
	if event.RelatedResourceType != "" {
		n.RelatedResourceType = &event.RelatedResourceType
	}
	if event.RelatedResourceID != "" {
		n.RelatedResourceID = &event.RelatedResourceID
	}

	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return nil, sentinel.Storage("create notification", err)
	}

	s.signal(recipientID, map[string]interface{}{
		"event":           "created",
		"notification_id": n.ID,
		"type":            n.Type,
	})
	return n, nil
}

// ============================================
// Workflow notifications
// ============================================

// NotifyAccessDecision tells the requester how their request was handled.
func (s *Service) NotifyAccessDecision(ctx context.Context, req *repository.AccessRequest) error {
	decision, ok := req.Decision()
	if !ok {
		return fmt.Errorf("request %s has no decision", req.ID)
	}

	title := "Request approved"
	content := fmt.Sprintf("Your journal access for %s to %s has been approved.",
		req.WindowStart.Format("2006-01-02 15:04"), req.WindowEnd.Format("2006-01-02 15:04"))
	if decision.Status == types.StatusRejected {
		title = "Request rejected"
		content = "Your journal access request was not approved."
	}

	_, err := s.Notify(ctx, req.RequesterID, Event{
		Type:                types.NotificationAuditResult,
		Title:               title,
		Content:             content,
		RelatedResourceType: "journal_access_request",
		RelatedResourceID:   req.ID,
		Payload: map[string]interface{}{
			"request_id": req.ID,
			"status":     string(decision.Status),
		},
	})
	return err
}

func (s *Service) SendWelcome(ctx context.Context, recipientID, nickname string) error {
	_, err := s.Notify(ctx, recipientID, Event{
		Type:    types.NotificationSystemAnnouncement,
		Title:   "Welcome",
		Content: fmt.Sprintf("Welcome to the class site, %s.", nickname),
	})
	return err
}

// SendWindowEnded reports that an approved window has closed.
func (s *Service) SendWindowEnded(ctx context.Context, req *repository.AccessRequest) error {
	_, err := s.Notify(ctx, req.RequesterID, Event{
		Type:                types.NotificationWindowEnded,
		Title:               "Access window ended",
		Content:             fmt.Sprintf("Your journal access window ended at %s.", req.WindowEnd.Format("2006-01-02 15:04")),
		RelatedResourceType: "journal_access_request",
		RelatedResourceID:   req.ID,
		Payload: map[string]interface{}{
			"request_id": req.ID,
		},
	})
	return err
}

// ============================================
// Recipient operations
// ============================================

// MarkRead flips one notification to read. Only the recipient may do it and
// an already-read notification is left alone, so the unread count never drops twice.
func (s *Service) MarkRead(ctx context.Context, notificationID, readerID string) error {
	if _, err := uuid.Parse(notificationID); err != nil {
		return sentinel.ErrNotFound
	}
	n, err := s.notificationRepo.FindByID(ctx, notificationID)
	if err != nil {
		return sentinel.Storage("find notification", err)
	}
	if n == nil {
		return sentinel.ErrNotFound
	}
	if n.RecipientID != readerID {
		return sentinel.ErrPermissionDenied
	}

	changed, err := s.notificationRepo.MarkAsRead(ctx, notificationID)
	if err != nil {
		return sentinel.Storage("mark notification read", err)
	}
	if changed {
		s.signal(readerID, map[string]interface{}{
			"event":           "read",
			"notification_id": notificationID,
		})
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, readerID string) (int, error) {
	changed, err := s.notificationRepo.MarkAllAsRead(ctx, readerID)
	if err != nil {
		return 0, sentinel.Storage("mark all notifications read", err)
	}
	if changed > 0 {
		s.signal(readerID, map[string]interface{}{
			"event": "read_all",
			"count": changed,
		})
	}
	return changed, nil
}

// CountUnread is the authoritative unread count used for hydration.
func (s *Service) CountUnread(ctx context.Context, recipientID string) (int, error) {
	count, err := s.notificationRepo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, sentinel.Storage("count unread notifications", err)
	}
	return count, nil
}

func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool) ([]*repository.Notification, error) {
	notifications, err := s.notificationRepo.FindByRecipient(ctx, recipientID, unreadOnly)
	if err != nil {
		return nil, sentinel.Storage("list notifications", err)
	}
	return notifications, nil
}

// CleanupOlderThan removes read notifications older than age.
func (s *Service) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	deleted, err := s.notificationRepo.DeleteOlderThan(ctx, s.now().Add(-age), true)
	if err != nil {
		return 0, sentinel.Storage("delete old notifications", err)
	}
	if deleted > 0 {
		s.logger.Info("old notifications removed", zap.Int("count", deleted))
	}
	return deleted, nil
}
