package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/realtime"
	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingServer fails every call and records how many arrived.
func countingServer(t *testing.T) (*realtime.HTTPSource, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return realtime.NewHTTPSource(srv.URL, time.Second), &calls
}

func stateFor(p *service.Principal) *realtime.PrincipalState {
	state := realtime.NewPrincipalState()
	state.Replace(realtime.NewSnapshot(p))
	return state
}

func TestInvalidSubmissionNeverReachesNetwork(t *testing.T) {
	src, calls := countingServer(t)
	validator := service.NewAccessRequestValidator(3*time.Hour, time.UTC)
	alumni := &service.Principal{ID: "a1", IdentityType: types.IdentityAlumni, Role: types.RoleNone}
	actions := realtime.NewActions(src, stateFor(alumni), validator, nil)

	_, err := actions.SubmitAccessRequest(context.Background(), models.SubmitAccessRequest{
		WindowStart: "09:00",
		WindowEnd:   "13:30",
		Reason:      "reunion planning",
	})
	require.ErrorIs(t, err, sentinel.ErrInvalidInput)
	var verr *sentinel.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "window_end", verr.Field)

	_, err = actions.SubmitAccessRequest(context.Background(), models.SubmitAccessRequest{
		WindowStart: "09:00",
		WindowEnd:   "10:00",
		Reason:      "   ",
	})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	assert.Zero(t, atomic.LoadInt64(calls))
}

func TestGatedActionsNeverReachNetwork(t *testing.T) {
	src, calls := countingServer(t)
	validator := service.NewAccessRequestValidator(3*time.Hour, time.UTC)
	ctx := context.Background()
	form := models.SubmitAccessRequest{WindowStart: "09:00", WindowEnd: "10:00", Reason: "ok"}

	anonymous := realtime.NewActions(src, realtime.NewPrincipalState(), validator, nil)
	_, err := anonymous.SubmitAccessRequest(ctx, form)
	assert.ErrorIs(t, err, sentinel.ErrPermissionDenied)

	classmate := realtime.NewActions(src, stateFor(&service.Principal{ID: "c1", IdentityType: types.IdentityClassmate, Role: types.RoleNone}), validator, nil)
	_, err = classmate.SubmitAccessRequest(ctx, form)
	assert.ErrorIs(t, err, sentinel.ErrPermissionDenied)
	_, err = classmate.ApproveRequest(ctx, "r1")
	assert.ErrorIs(t, err, sentinel.ErrPermissionDenied)
	_, err = classmate.RejectRequest(ctx, "r1")
	assert.ErrorIs(t, err, sentinel.ErrPermissionDenied)

	assert.Zero(t, atomic.LoadInt64(calls))
}

func TestSubmitRefreshesAuthorView(t *testing.T) {
	e := newTestEnv(t)
	src, snap := e.login(t, chenEmail)
	state := realtime.NewPrincipalState()
	state.Replace(snap)

	view := realtime.NewViewModel(src, nil, snap.Principal.ID, zap.NewNop())
	require.NoError(t, view.Start(context.Background()))
	require.Len(t, view.State().RequestHistory, 1)

	actions := realtime.NewActions(src, state, e.services.Validator, view)
	start := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Hour)
	created, err := actions.SubmitAccessRequest(context.Background(), models.SubmitAccessRequest{
		WindowStart: start.Format(time.RFC3339),
		WindowEnd:   start.Add(90 * time.Minute).Format(time.RFC3339),
		Reason:      "checking the reunion schedule",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", created.Status)

	s := view.State()
	assert.Equal(t, realtime.ReasonAction, s.LastReason)
	require.Len(t, s.RequestHistory, 2)
	assert.Equal(t, created.ID, s.RequestHistory[0].ID)
}

func TestSecondDecisionConflictsAndRefreshes(t *testing.T) {
	e := newTestEnv(t)
	src, snap := e.login(t, editorEmail)
	state := realtime.NewPrincipalState()
	state.Replace(snap)
	require.True(t, snap.Can(types.CapApproveOrRejectRequest))

	view := realtime.NewViewModel(src, nil, snap.Principal.ID, zap.NewNop())
	refreshes := 0
	view.OnChange(func(realtime.ViewState) { refreshes++ })
	actions := realtime.NewActions(src, state, e.services.Validator, view)

	requestID := pendingRequestID(t, e, e.profileID(t, chenEmail))
	approved, err := actions.ApproveRequest(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Status)
	require.NotNil(t, approved.HandledBy)
	assert.Equal(t, snap.Principal.ID, *approved.HandledBy)
	assert.Equal(t, 1, refreshes)

	_, err = actions.RejectRequest(context.Background(), requestID)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.Equal(t, 2, refreshes, "stale local state is re-read")

	_, err = actions.ApproveRequest(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestAdminWithoutJournalRightIsRefusedByServer(t *testing.T) {
	e := newTestEnv(t)
	src, snap := e.login(t, "helper@class26b.site")
	state := realtime.NewPrincipalState()
	state.Replace(snap)

	actions := realtime.NewActions(src, state, e.services.Validator, nil)
	_, err := actions.ApproveRequest(context.Background(), pendingRequestID(t, e, e.profileID(t, chenEmail)))
	assert.ErrorIs(t, err, sentinel.ErrPermissionDenied)
}
