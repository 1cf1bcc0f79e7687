package repository

import (
	"github.com/baiweichihu/26b-website-sub001/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	ProfileRepo       ProfileRepository
	AccessRequestRepo AccessRequestRepository
	NotificationRepo  NotificationRepository
	SessionRepo       SessionRepository
}

func NewRepositories(pool *pgxpool.Pool, redisDB *db.RedisDB) *Repositories {
	return &Repositories{
		ProfileRepo:       NewProfileRepository(pool),
		AccessRequestRepo: NewAccessRequestRepository(pool),
		NotificationRepo:  NewNotificationRepository(pool),
		SessionRepo:       NewSessionRepository(redisDB),
	}
}
