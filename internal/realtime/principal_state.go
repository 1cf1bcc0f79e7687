package realtime

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
)

// PrincipalSnapshot is an immutable view of who is signed in. Tier and
// capabilities are computed once when the snapshot is built.
type PrincipalSnapshot struct {
	Principal    *service.Principal
	Tier         types.Tier
	Capabilities map[types.Capability]bool
}

func NewSnapshot(p *service.Principal) *PrincipalSnapshot {
	return &PrincipalSnapshot{
		Principal:    p,
		Tier:         service.Classify(p),
		Capabilities: service.Capabilities(p),
	}
}

// SnapshotFromResponse builds a snapshot from the /api/me payload.
func SnapshotFromResponse(resp *models.PrincipalResponse) *PrincipalSnapshot {
	if resp == nil {
		return NewSnapshot(nil)
	}
	return NewSnapshot(&service.Principal{
		ID:               resp.ID,
		Email:            resp.Email,
		Nickname:         resp.Nickname,
		Avatar:           resp.Avatar,
		IdentityType:     types.IdentityType(resp.IdentityType),
		Role:             types.Role(resp.Role),
		CanManageJournal: resp.CanManageJournal,
	})
}

func (s *PrincipalSnapshot) Can(capability types.Capability) bool {
	return s != nil && s.Capabilities[capability]
}

// PrincipalState holds the current snapshot. Replacements are atomic and
// every subscriber is told about each one.
type PrincipalState struct {
	current atomic.Pointer[PrincipalSnapshot]

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(*PrincipalSnapshot)
}

func NewPrincipalState() *PrincipalState {
	s := &PrincipalState{listeners: make(map[int]func(*PrincipalSnapshot))}
	s.current.Store(NewSnapshot(nil))
	return s
}

func (s *PrincipalState) Load() *PrincipalSnapshot {
	return s.current.Load()
}

// Replace swaps in snap and notifies subscribers in registration order.
func (s *PrincipalState) Replace(snap *PrincipalSnapshot) {
	if snap == nil {
		snap = NewSnapshot(nil)
	}
	s.current.Store(snap)

	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	fns := make([]func(*PrincipalSnapshot), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *PrincipalState) Subscribe(fn func(*PrincipalSnapshot)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
