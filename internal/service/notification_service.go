package service

import (
	"context"

	"github.com/baiweichihu/26b-website-sub001/internal/notification"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
)

// ============================================
// Notification Service (for handlers)
// ============================================

type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool) ([]*repository.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, readerID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type notificationService struct {
	publisher *notification.Service
}

func NewNotificationService(publisher *notification.Service) NotificationService {
	return &notificationService{publisher: publisher}
}

func (s *notificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]*repository.Notification, error) {
	return s.publisher.List(ctx, userID, unreadOnly)
}

func (s *notificationService) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.publisher.CountUnread(ctx, userID)
}

func (s *notificationService) MarkRead(ctx context.Context, id, readerID string) error {
	return s.publisher.MarkRead(ctx, id, readerID)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.publisher.MarkAllRead(ctx, userID)
}
