package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/google/uuid"
)

type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]repository.Profile
	tokens   map[string]repository.RefreshToken
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		profiles: make(map[string]repository.Profile),
		tokens:   make(map[string]repository.RefreshToken),
	}
}

func (r *ProfileRepository) Create(_ context.Context, profile *repository.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.profiles {
		if strings.EqualFold(existing.Email, profile.Email) {
			return fmt.Errorf("create profile: duplicate email %q", profile.Email)
		}
	}
	if profile.IdentityType == "" {
		profile.IdentityType = types.IdentityGuest
	}
	if profile.Role == "" {
		profile.Role = types.RoleNone
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	r.profiles[profile.ID] = *profile
	return nil
}

func (r *ProfileRepository) FindByID(_ context.Context, id string) (*repository.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ProfileRepository) FindByEmail(_ context.Context, email string) (*repository.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.profiles {
		if strings.EqualFold(p.Email, email) {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r *ProfileRepository) SaveRefreshToken(_ context.Context, token *repository.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token.ID = uuid.NewString()
	token.CreatedAt = time.Now()
	r.tokens[token.Token] = *token
	return nil
}

func (r *ProfileRepository) FindRefreshToken(_ context.Context, token string) (*repository.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.tokens[token]
	if !ok {
		return nil, nil
	}
	return &rt, nil
}

func (r *ProfileRepository) DeleteRefreshToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, token)
	return nil
}

func (r *ProfileRepository) DeleteSessionRefreshTokens(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, rt := range r.tokens {
		if rt.SessionID == sessionID {
			delete(r.tokens, k)
		}
	}
	return nil
}

func (r *ProfileRepository) UpdateRole(_ context.Context, id string, role types.Role, canManageJournal bool) (*repository.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	p.Role = role
	p.CanManageJournal = canManageJournal
	p.UpdatedAt = time.Now()
	r.profiles[id] = p
	return &p, nil
}

func (r *ProfileRepository) FindByRole(_ context.Context, role types.Role) ([]*repository.Profile, error) {
	var out []*repository.Profile
	for _, p := range r.sorted() {
		if p.Role == role {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *ProfileRepository) ListIDs(_ context.Context, identities []types.IdentityType) ([]string, error) {
	var ids []string
	for _, p := range r.sorted() {
		if len(identities) == 0 || containsIdentity(identities, p.IdentityType) {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// sorted returns a snapshot in creation order.
func (r *ProfileRepository) sorted() []repository.Profile {
	r.mu.RLock()
	out := make([]repository.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func containsIdentity(list []types.IdentityType, t types.IdentityType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

// nickname and email lookups for review queue joins
func (r *ProfileRepository) contact(id string) (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return "", ""
	}
	return p.Nickname, p.Email
}
