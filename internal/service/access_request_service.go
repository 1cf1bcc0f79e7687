package service

import (
	"context"
	"errors"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================
// Access Request Service
// ============================================

// DecisionNotifier records workflow notifications for requesters.
type DecisionNotifier interface {
	NotifyAccessDecision(ctx context.Context, req *repository.AccessRequest) error
	SendWindowEnded(ctx context.Context, req *repository.AccessRequest) error
}

// DecisionMailer sends the optional decision email.
type DecisionMailer interface {
	SendAccessDecisionEmail(to, nickname string, approved bool, windowStart, windowEnd time.Time) error
}

// AccessRequestSignaler pushes change hints for a requester's requests.
type AccessRequestSignaler interface {
	AccessRequestChanged(requesterID string, payload map[string]interface{})
}

type AccessRequestService interface {
	Submit(ctx context.Context, requesterID string, candidate AccessRequestCandidate) (*repository.AccessRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*repository.AccessRequest, error)
	ListForReview(ctx context.Context, reviewerID string, status types.RequestStatus) ([]*repository.AccessRequest, error)
	Transition(ctx context.Context, requestID string, status types.RequestStatus, handlerID string) (*repository.AccessRequest, error)
	Approve(ctx context.Context, requestID, handlerID string) (*repository.AccessRequest, error)
	Reject(ctx context.Context, requestID, handlerID string) (*repository.AccessRequest, error)
	HasActiveAccess(ctx context.Context, requesterID string) (*repository.AccessRequest, error)
	NotifyEndedWindows(ctx context.Context) (int, error)
}

type accessRequestService struct {
	requestRepo repository.AccessRequestRepository
	profileRepo repository.ProfileRepository
	validator   *AccessRequestValidator
	notifier    DecisionNotifier
	mailer      DecisionMailer
	signaler    AccessRequestSignaler
	logger      *zap.Logger
	now         func() time.Time
}

type AccessRequestDeps struct {
	Requests  repository.AccessRequestRepository
	Profiles  repository.ProfileRepository
	Validator *AccessRequestValidator
	Notifier  DecisionNotifier
	Mailer    DecisionMailer
	Signaler  AccessRequestSignaler
	Logger    *zap.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

func NewAccessRequestService(deps AccessRequestDeps) AccessRequestService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	validator := deps.Validator
	if validator == nil {
		validator = NewAccessRequestValidator(MaxAccessWindow, time.UTC)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &accessRequestService{
		requestRepo: deps.Requests,
		profileRepo: deps.Profiles,
		validator:   validator,
		notifier:    deps.Notifier,
		mailer:      deps.Mailer,
		signaler:    deps.Signaler,
		logger:      logger.Named("access_requests"),
		now:         now,
	}
}

func (s *accessRequestService) principal(ctx context.Context, id string) (*Principal, error) {
	profile, err := s.profileRepo.FindByID(ctx, id)
	if err != nil {
		return nil, sentinel.Storage("find profile", err)
	}
	if profile == nil {
		return nil, ErrPermissionDenied
	}
	return PrincipalFromProfile(profile), nil
}

// Submit validates and stores a pending request. Repeated submissions for the
// same requester are all kept.
func (s *accessRequestService) Submit(ctx context.Context, requesterID string, candidate AccessRequestCandidate) (*repository.AccessRequest, error) {
	requester, err := s.principal(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	candidate.Requester = requester

	window, err := s.validator.Validate(candidate, s.now())
	if err != nil {
		return nil, err
	}

	// Once validated the insert runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	req := &repository.AccessRequest{
		RequesterID: requesterID,
		Status:      types.StatusPending,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Reason:      window.Reason,
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, sentinel.Storage("create access request", err)
	}

	s.logger.Info("access request submitted",
		zap.String("request_id", req.ID),
		zap.String("requester_id", requesterID),
		zap.Time("window_start", req.WindowStart),
		zap.Time("window_end", req.WindowEnd),
	)
	s.signal(req, "created")
	return req, nil
}

func (s *accessRequestService) ListByRequester(ctx context.Context, requesterID string) ([]*repository.AccessRequest, error) {
	requests, err := s.requestRepo.FindByRequester(ctx, requesterID)
	if err != nil {
		return nil, sentinel.Storage("list access requests", err)
	}
	return requests, nil
}

// ListForReview is the admin queue, newest first, with requester contact details.
func (s *accessRequestService) ListForReview(ctx context.Context, reviewerID string, status types.RequestStatus) ([]*repository.AccessRequest, error) {
	reviewer, err := s.principal(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if !Classify(reviewer).IsStaff() {
		return nil, ErrPermissionDenied
	}
	if status != "" && status != types.StatusPending && !types.IsDecision(status) {
		return nil, sentinel.Invalid("status", "unknown status")
	}

	requests, err := s.requestRepo.FindAll(ctx, status)
	if err != nil {
		return nil, sentinel.Storage("list access requests", err)
	}
	return requests, nil
}

// Transition makes the one-shot pending to approved or rejected move.
// The handler's permission is checked here regardless of any UI gating.
func (s *accessRequestService) Transition(ctx context.Context, requestID string, status types.RequestStatus, handlerID string) (*repository.AccessRequest, error) {
	if !types.IsDecision(status) {
		return nil, sentinel.Invalid("status", "status must be approved or rejected")
	}

	handler, err := s.principal(ctx, handlerID)
	if err != nil {
		return nil, err
	}
	if !CanReview(handler) {
		return nil, ErrPermissionDenied
	}
	// Ids are UUIDs; anything else cannot name a stored request.
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, ErrNotFound
	}

	ctx = context.WithoutCancel(ctx)

	req, err := s.requestRepo.Transition(ctx, requestID, status, handlerID, s.now())
	if errors.Is(err, repository.ErrNotPending) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, sentinel.Storage("transition access request", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	s.logger.Info("access request handled",
		zap.String("request_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.String("handled_by", handlerID),
	)

	s.signal(req, "handled")
	s.afterDecision(ctx, req)
	return req, nil
}

func (s *accessRequestService) Approve(ctx context.Context, requestID, handlerID string) (*repository.AccessRequest, error) {
	return s.Transition(ctx, requestID, types.StatusApproved, handlerID)
}

func (s *accessRequestService) Reject(ctx context.Context, requestID, handlerID string) (*repository.AccessRequest, error) {
	return s.Transition(ctx, requestID, types.StatusRejected, handlerID)
}

// afterDecision runs the side effects of a committed transition. The stored
// status is already final, so failures are only logged.
func (s *accessRequestService) afterDecision(ctx context.Context, req *repository.AccessRequest) {
	if s.notifier != nil {
		if err := s.notifier.NotifyAccessDecision(ctx, req); err != nil {
			s.logger.Warn("decision notification lost",
				zap.String("request_id", req.ID),
				zap.String("requester_id", req.RequesterID),
				zap.Error(err),
			)
		}
	}

	if s.mailer == nil {
		return
	}
	profile, err := s.profileRepo.FindByID(ctx, req.RequesterID)
	if err != nil || profile == nil {
		s.logger.Warn("decision email skipped", zap.String("request_id", req.ID), zap.Error(err))
		return
	}
	if err := s.mailer.SendAccessDecisionEmail(profile.Email, profile.Nickname,
		req.Status == types.StatusApproved, req.WindowStart, req.WindowEnd); err != nil {
		s.logger.Warn("decision email failed", zap.String("request_id", req.ID), zap.Error(err))
	}
}

func (s *accessRequestService) signal(req *repository.AccessRequest, event string) {
	if s.signaler == nil {
		return
	}
	s.signaler.AccessRequestChanged(req.RequesterID, map[string]interface{}{
		"event":      event,
		"request_id": req.ID,
		"status":     string(req.Status),
	})
}

// HasActiveAccess returns the approved request whose window covers now, or nil.
func (s *accessRequestService) HasActiveAccess(ctx context.Context, requesterID string) (*repository.AccessRequest, error) {
	req, err := s.requestRepo.FindActiveForRequester(ctx, requesterID, s.now())
	if err != nil {
		return nil, sentinel.Storage("find active access", err)
	}
	return req, nil
}

// NotifyEndedWindows sends one window_ended notice per approved request whose
// window has closed. A request is only flagged after its notice was stored.
func (s *accessRequestService) NotifyEndedWindows(ctx context.Context) (int, error) {
	ended, err := s.requestRepo.FindEndedUnnotified(ctx, s.now())
	if err != nil {
		return 0, sentinel.Storage("find ended windows", err)
	}

	sent := 0
	for _, req := range ended {
		if s.notifier != nil {
			if err := s.notifier.SendWindowEnded(ctx, req); err != nil {
				s.logger.Warn("window ended notice failed", zap.String("request_id", req.ID), zap.Error(err))
				continue
			}
		}
		if err := s.requestRepo.MarkExpiryNotified(ctx, req.ID); err != nil {
			return sent, sentinel.Storage("mark expiry notified", err)
		}
		sent++
	}
	return sent, nil
}
