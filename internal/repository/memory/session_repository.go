package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/repository"
)

type sessionEntry struct {
	session   repository.Session
	expiresAt time.Time
}

type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]sessionEntry)}
}

func (r *SessionRepository) Save(_ context.Context, session *repository.Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = sessionEntry{session: *session, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (r *SessionRepository) Find(_ context.Context, id string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(r.sessions, id)
		return nil, nil
	}
	s := entry.session
	return &s, nil
}

func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}
