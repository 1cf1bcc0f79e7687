package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/db"
	"github.com/redis/go-redis/v9"
)

// Session is the server-side record behind an access token. Deleting it
// invalidates every token that carries its id.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionRepository interface {
	Save(ctx context.Context, session *Session, ttl time.Duration) error
	Find(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type redisSessionRepository struct {
	redis *db.RedisDB
}

func NewSessionRepository(redisDB *db.RedisDB) SessionRepository {
	return &redisSessionRepository{redis: redisDB}
}

func (r *redisSessionRepository) Save(ctx context.Context, session *Session, ttl time.Duration) error {
	if err := r.redis.SetSession(ctx, session.ID, session, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) Find(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := r.redis.GetSession(ctx, id, &session)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.redis.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
