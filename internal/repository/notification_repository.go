package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Notification struct {
	ID                  string
	RecipientID         string
	Type                string
	Title               string
	Content             string
	RelatedResourceType *string
	RelatedResourceID   *string
	Payload             map[string]interface{}
	IsRead              bool
	CreatedAt           time.Time
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *Notification) error
	FindByID(ctx context.Context, id string) (*Notification, error)
	FindByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkAsRead reports whether the row flipped from unread to read.
	MarkAsRead(ctx context.Context, id string) (bool, error)
	MarkAllAsRead(ctx context.Context, recipientID string) (int, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time, readOnly bool) (int, error)
}

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

const notificationColumns = `id, recipient_id, type, title, content, related_resource_type, related_resource_id, payload, is_read, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	n := &Notification{}
	var payload []byte
	if err := row.Scan(
		&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Content,
		&n.RelatedResourceType, &n.RelatedResourceID, &payload, &n.IsRead, &n.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return n, nil
}

func (r *pgNotificationRepository) Create(ctx context.Context, notification *Notification) error {
	payload := []byte("{}")
	if notification.Payload != nil {
		data, err := json.Marshal(notification.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = data
	}
	query := `
		INSERT INTO notifications (recipient_id, type, title, content, related_resource_type, related_resource_id, payload, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		notification.RecipientID, notification.Type, notification.Title, notification.Content,
		notification.RelatedResourceType, notification.RelatedResourceID, payload, notification.IsRead,
	).Scan(&notification.ID, &notification.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) FindByID(ctx context.Context, id string) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return n, nil
}

func (r *pgNotificationRepository) FindByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

func (r *pgNotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`
	var unread int
	if err := r.pool.QueryRow(ctx, query, recipientID).Scan(&unread); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return unread, nil
}

func (r *pgNotificationRepository) MarkAsRead(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND is_read = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *pgNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID string) (int, error) {
	result, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *pgNotificationRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time, readOnly bool) (int, error) {
	query := `DELETE FROM notifications WHERE created_at < $1`
	if readOnly {
		query += ` AND is_read = TRUE`
	}
	result, err := r.pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	return int(result.RowsAffected()), nil
}
