package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
)

// Actions are the imperative operations a view may trigger. Each one is
// gated and validated locally before it reaches the network, and refreshes
// the view afterwards so the author sees their own write.
type Actions struct {
	api       *HTTPSource
	principal *PrincipalState
	validator *service.AccessRequestValidator
	view      *ViewModel
	now       func() time.Time
}

func NewActions(api *HTTPSource, principal *PrincipalState, validator *service.AccessRequestValidator, view *ViewModel) *Actions {
	return &Actions{
		api:       api,
		principal: principal,
		validator: validator,
		view:      view,
		now:       time.Now,
	}
}

func (a *Actions) SubmitAccessRequest(ctx context.Context, form models.SubmitAccessRequest) (*models.AccessRequestResponse, error) {
	snap := a.principal.Load()
	if !snap.Can(types.CapSubmitAccessRequest) {
		return nil, sentinel.ErrPermissionDenied
	}
	if _, err := a.validator.Validate(service.AccessRequestCandidate{
		Requester:   snap.Principal,
		WindowStart: form.WindowStart,
		WindowEnd:   form.WindowEnd,
		Reason:      form.Reason,
	}, a.now()); err != nil {
		return nil, err
	}

	// Dispatched requests finish even if the view goes away.
	resp, err := a.api.SubmitAccessRequest(context.WithoutCancel(ctx), form)
	if err != nil {
		return nil, err
	}
	a.refresh(ctx)
	return resp, nil
}

func (a *Actions) ApproveRequest(ctx context.Context, id string) (*models.AccessRequestResponse, error) {
	if !a.principal.Load().Can(types.CapApproveOrRejectRequest) {
		return nil, sentinel.ErrPermissionDenied
	}
	resp, err := a.api.ApproveRequest(context.WithoutCancel(ctx), id)
	a.afterDecision(ctx, err)
	return resp, err
}

func (a *Actions) RejectRequest(ctx context.Context, id string) (*models.AccessRequestResponse, error) {
	if !a.principal.Load().Can(types.CapApproveOrRejectRequest) {
		return nil, sentinel.ErrPermissionDenied
	}
	resp, err := a.api.RejectRequest(context.WithoutCancel(ctx), id)
	a.afterDecision(ctx, err)
	return resp, err
}

func (a *Actions) MarkNotificationsRead(ctx context.Context) error {
	if _, err := a.api.MarkNotificationsRead(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// afterDecision refreshes on success and on the stale-state errors, where the
// local view no longer matches the store.
func (a *Actions) afterDecision(ctx context.Context, err error) {
	if err == nil || errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
		a.refresh(ctx)
	}
}

func (a *Actions) refresh(ctx context.Context) {
	if a.view != nil && ctx.Err() == nil {
		a.view.Refresh(ctx, ReasonAction)
	}
}
