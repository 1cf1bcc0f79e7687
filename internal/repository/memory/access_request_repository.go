package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/google/uuid"
)

type storedRequest struct {
	seq uint64
	req repository.AccessRequest
}

type AccessRequestRepository struct {
	mu       sync.Mutex
	seq      uint64
	requests map[string]*storedRequest
	profiles *ProfileRepository
	failure  error
	now      func() time.Time
}

func NewAccessRequestRepository(profiles *ProfileRepository) *AccessRequestRepository {
	return &AccessRequestRepository{
		requests: make(map[string]*storedRequest),
		profiles: profiles,
		now:      time.Now,
	}
}

// SetFailure makes every subsequent call return err until cleared with nil.
func (r *AccessRequestRepository) SetFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = err
}

func copyRequest(s *storedRequest) *repository.AccessRequest {
	req := s.req
	if s.req.HandledAt != nil {
		at := *s.req.HandledAt
		req.HandledAt = &at
	}
	if s.req.HandledBy != nil {
		by := *s.req.HandledBy
		req.HandledBy = &by
	}
	return &req
}

// sorted returns matching rows newest first; insertion order breaks created_at ties.
func (r *AccessRequestRepository) sorted(match func(*repository.AccessRequest) bool) []*storedRequest {
	var out []*storedRequest
	for _, s := range r.requests {
		if match(&s.req) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].req.CreatedAt.Equal(out[j].req.CreatedAt) {
			return out[i].req.CreatedAt.After(out[j].req.CreatedAt)
		}
		return out[i].seq > out[j].seq
	})
	return out
}

func (r *AccessRequestRepository) Create(_ context.Context, req *repository.AccessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return r.failure
	}
	r.seq++
	req.ID = uuid.NewString()
	req.Status = types.StatusPending
	req.CreatedAt = r.now()
	req.HandledAt = nil
	req.HandledBy = nil
	r.requests[req.ID] = &storedRequest{seq: r.seq, req: *req}
	return nil
}

func (r *AccessRequestRepository) FindByID(_ context.Context, id string) (*repository.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return nil, r.failure
	}
	s, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	return copyRequest(s), nil
}

func (r *AccessRequestRepository) FindByRequester(_ context.Context, requesterID string) ([]*repository.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return nil, r.failure
	}
	var out []*repository.AccessRequest
	for _, s := range r.sorted(func(req *repository.AccessRequest) bool { return req.RequesterID == requesterID }) {
		out = append(out, copyRequest(s))
	}
	return out, nil
}

func (r *AccessRequestRepository) FindAll(_ context.Context, status types.RequestStatus) ([]*repository.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return nil, r.failure
	}
	var out []*repository.AccessRequest
	for _, s := range r.sorted(func(req *repository.AccessRequest) bool { return status == "" || req.Status == status }) {
		req := copyRequest(s)
		if r.profiles != nil {
			req.RequesterNickname, req.RequesterEmail = r.profiles.contact(req.RequesterID)
		}
		out = append(out, req)
	}
	return out, nil
}

// Transition is a compare-and-set under the store mutex.
func (r *AccessRequestRepository) Transition(_ context.Context, id string, status types.RequestStatus, handledBy string, handledAt time.Time) (*repository.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return nil, r.failure
	}
	s, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	if !s.req.IsPending() {
		return copyRequest(s), repository.ErrNotPending
	}
	s.req.Status = status
	s.req.HandledAt = &handledAt
	s.req.HandledBy = &handledBy
	return copyRequest(s), nil
}

func (r *AccessRequestRepository) FindActiveForRequester(_ context.Context, requesterID string, at time.Time) (*repository.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return nil, r.failure
	}
	var best *storedRequest
	for _, s := range r.requests {
		if s.req.RequesterID != requesterID || !s.req.Covers(at) {
			continue
		}
		if best == nil || s.req.WindowEnd.After(best.req.WindowEnd) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyRequest(best), nil
}

func (r *AccessRequestRepository) FindEndedUnnotified(_ context.Context, before time.Time) ([]*repository.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return nil, r.failure
	}
	var out []*repository.AccessRequest
	for _, s := range r.requests {
		if s.req.Status == types.StatusApproved && s.req.WindowEnd.Before(before) && !s.req.ExpiryNotified {
			out = append(out, copyRequest(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowEnd.Before(out[j].WindowEnd) })
	return out, nil
}

func (r *AccessRequestRepository) MarkExpiryNotified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure != nil {
		return r.failure
	}
	if s, ok := r.requests[id]; ok {
		s.req.ExpiryNotified = true
	}
	return nil
}
