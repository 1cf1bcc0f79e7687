package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/config"
	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/notification"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/repository/memory"
	"github.com/baiweichihu/26b-website-sub001/internal/seed"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/socket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiSuite struct {
	router *gin.Engine
	repos  *repository.Repositories
}

func newAPISuite(t *testing.T) *apiSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		StorageDriver:   config.StorageDriverMemory,
		JWTSecret:       "router-test",
		JWTExpiry:       1,
		RefreshExpiry:   1,
		MaxAccessWindow: 3 * time.Hour,
		Timezone:        "UTC",
	}
	repos := memory.NewRepositories()
	require.NoError(t, seed.SeedData(ctx, repos, logger))

	hub := socket.NewHub(logger)
	go hub.Run(ctx)
	broadcaster := socket.NewBroadcaster(hub, logger)
	publisher := notification.NewService(repos.NotificationRepo, logger)
	publisher.SetSignaler(broadcaster)

	services := service.NewServices(&service.ServiceDeps{
		Config:    cfg,
		Repos:     repos,
		Publisher: publisher,
		Signaler:  broadcaster,
		Logger:    logger,
	})
	return &apiSuite{
		router: NewRouter(RouterDeps{Config: cfg, Services: services, Hub: hub, Logger: logger}),
		repos:  repos,
	}
}

func (s *apiSuite) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *apiSuite) login(t *testing.T, email string) (string, models.PrincipalResponse) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: email, Password: seed.DefaultPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken, resp.User
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func futureWindow(d time.Duration) models.SubmitAccessRequest {
	start := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Hour)
	return models.SubmitAccessRequest{
		WindowStart: start.Format(time.RFC3339),
		WindowEnd:   start.Add(d).Format(time.RFC3339),
		Reason:      "Reading the farewell party entries",
	}
}

func TestHealth(t *testing.T) {
	s := newAPISuite(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["storage"])
}

func TestMeForAnonymousCaller(t *testing.T) {
	s := newAPISuite(t)

	for _, token := range []string{"", "garbage"} {
		w := s.do(t, http.MethodGet, "/api/me", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		me := decode[models.MeResponse](t, w)
		assert.Nil(t, me.User)
		assert.Equal(t, "anonymous", me.Tier)
		assert.False(t, me.Capabilities["submit_access_request"])
	}
}

func TestMeForAlumni(t *testing.T) {
	s := newAPISuite(t)
	token, _ := s.login(t, "chen@alumni.class26b.site")

	me := decode[models.MeResponse](t, s.do(t, http.MethodGet, "/api/me", token, nil))
	require.NotNil(t, me.User)
	assert.Equal(t, "alumni", me.User.IdentityType)
	assert.Equal(t, "member", me.Tier)
	assert.True(t, me.Capabilities["submit_access_request"])
	assert.False(t, me.Capabilities["view_admin_panel"])

	view := decode[models.ViewResponse](t, s.do(t, http.MethodGet, "/api/me/view", token, nil))
	assert.Equal(t, "pending", view.Status)
	assert.Len(t, view.RequestHistory, 1)
}

func TestRegisterCannotChooseRole(t *testing.T) {
	s := newAPISuite(t)

	w := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":        "newcomer@example.com",
		"password":     "password123",
		"identityType": "alumni",
		"role":         "superuser",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[models.AuthResponse](t, w)
	assert.Equal(t, "none", resp.User.Role)

	w = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "newcomer@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmitAccessRequest(t *testing.T) {
	s := newAPISuite(t)
	token, user := s.login(t, "wang@alumni.class26b.site")

	w := s.do(t, http.MethodPost, "/api/access-requests", token, futureWindow(2*time.Hour))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.AccessRequestResponse](t, w)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, user.ID, created.RequesterID)
	assert.Nil(t, created.HandledAt)

	mine := decode[[]models.AccessRequestResponse](t, s.do(t, http.MethodGet, "/api/access-requests/mine", token, nil))
	require.Len(t, mine, 2)
	assert.Equal(t, created.ID, mine[0].ID)
}

func TestSubmitInvalidWindowCreatesNothing(t *testing.T) {
	s := newAPISuite(t)
	token, user := s.login(t, "wang@alumni.class26b.site")

	w := s.do(t, http.MethodPost, "/api/access-requests", token, futureWindow(4*time.Hour))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "window_end", decode[models.ErrorResponse](t, w).Field)

	w = s.do(t, http.MethodPost, "/api/access-requests", token, models.SubmitAccessRequest{
		WindowStart: "tomorrow", WindowEnd: "later", Reason: "x",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "window_start", decode[models.ErrorResponse](t, w).Field)

	list, err := s.repos.AccessRequestRepo.FindByRequester(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1, "only the seeded request")
}

func TestSubmitRequiresAlumni(t *testing.T) {
	s := newAPISuite(t)

	w := s.do(t, http.MethodPost, "/api/access-requests", "", futureWindow(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _ := s.login(t, "lin@class26b.site")
	w = s.do(t, http.MethodPost, "/api/access-requests", token, futureWindow(time.Hour))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func pendingID(t *testing.T, s *apiSuite, token string) string {
	t.Helper()
	queue := decode[[]models.AccessRequestResponse](t, s.do(t, http.MethodGet, "/api/admin/access-requests?status=pending", token, nil))
	require.NotEmpty(t, queue)
	assert.NotEmpty(t, queue[0].RequesterEmail)
	return queue[0].ID
}

func TestApproveFlow(t *testing.T) {
	s := newAPISuite(t)
	editor, editorUser := s.login(t, "editor@class26b.site")
	monitor, _ := s.login(t, "monitor@class26b.site")
	alumni, _ := s.login(t, "chen@alumni.class26b.site")

	var id string
	for _, r := range decode[[]models.AccessRequestResponse](t, s.do(t, http.MethodGet, "/api/access-requests/mine", alumni, nil)) {
		id = r.ID
	}
	require.NotEmpty(t, id)
	require.NotEmpty(t, pendingID(t, s, editor))

	w := s.do(t, http.MethodPost, "/api/admin/access-requests/"+id+"/approve", alumni, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/admin/access-requests/"+id+"/approve", editor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[models.AccessRequestResponse](t, w)
	assert.Equal(t, "approved", approved.Status)
	require.NotNil(t, approved.HandledBy)
	assert.Equal(t, editorUser.ID, *approved.HandledBy)

	w = s.do(t, http.MethodPost, "/api/admin/access-requests/"+id+"/reject", monitor, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/admin/access-requests/missing/approve", monitor, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	count := decode[models.NotificationCountResponse](t, s.do(t, http.MethodGet, "/api/notifications/count", alumni, nil))
	assert.Equal(t, 1, count.Unread)
}

func TestAdminWithoutJournalRight(t *testing.T) {
	s := newAPISuite(t)
	helper, _ := s.login(t, "helper@class26b.site")

	id := pendingID(t, s, helper)
	w := s.do(t, http.MethodPost, "/api/admin/access-requests/"+id+"/approve", helper, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotificationRead(t *testing.T) {
	s := newAPISuite(t)
	editor, _ := s.login(t, "editor@class26b.site")
	alumni, _ := s.login(t, "chen@alumni.class26b.site")
	other, _ := s.login(t, "wang@alumni.class26b.site")

	for _, r := range decode[[]models.AccessRequestResponse](t, s.do(t, http.MethodGet, "/api/access-requests/mine", alumni, nil)) {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/admin/access-requests/"+r.ID+"/reject", editor, nil).Code)
	}

	list := decode[[]models.NotificationResponse](t, s.do(t, http.MethodGet, "/api/notifications?unread=true", alumni, nil))
	require.Len(t, list, 1)
	assert.Equal(t, "audit_result", list[0].Type)
	assert.Equal(t, "rejected", list[0].Payload["status"])

	path := "/api/notifications/" + list[0].ID + "/read"
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, path, other, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, path, alumni, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, path, alumni, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/notifications/missing/read", alumni, nil).Code)

	count := decode[models.NotificationCountResponse](t, s.do(t, http.MethodGet, "/api/notifications/count", alumni, nil))
	assert.Zero(t, count.Unread)

	updated := decode[models.MarkAllReadResponse](t, s.do(t, http.MethodPut, "/api/notifications/read-all", alumni, nil))
	assert.Zero(t, updated.Updated)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newAPISuite(t)
	token, _ := s.login(t, "visitor@example.com")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/me/view", token, nil).Code)

	me := decode[models.MeResponse](t, s.do(t, http.MethodGet, "/api/me", token, nil))
	assert.Equal(t, "anonymous", me.Tier)
}

func TestSuperuserManagesAdmins(t *testing.T) {
	s := newAPISuite(t)
	monitor, _ := s.login(t, "monitor@class26b.site")
	editor, _ := s.login(t, "editor@class26b.site")
	lin, linUser := s.login(t, "lin@class26b.site")
	_, chen := s.login(t, "chen@alumni.class26b.site")

	admins := decode[[]models.PrincipalResponse](t, s.do(t, http.MethodGet, "/api/admin/admins", monitor, nil))
	assert.Len(t, admins, 2)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/admins", editor, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/admin/admins/"+linUser.ID, editor, nil).Code)

	w := s.do(t, http.MethodPost, "/api/admin/admins/"+linUser.ID, monitor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	appointed := decode[models.PrincipalResponse](t, w)
	assert.Equal(t, "admin", appointed.Role)
	assert.False(t, appointed.CanManageJournal)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/admin/admins/"+linUser.ID, monitor, nil).Code)

	me := decode[models.MeResponse](t, s.do(t, http.MethodGet, "/api/me", lin, nil))
	assert.Equal(t, "admin", me.Tier)

	id := pendingID(t, s, lin)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/admin/access-requests/"+id+"/approve", lin, nil).Code)

	path := "/api/admin/admins/" + linUser.ID + "/permissions"
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, path, monitor, gin.H{}).Code)
	w = s.do(t, http.MethodPut, path, monitor, gin.H{"canManageJournal": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[models.PrincipalResponse](t, w).CanManageJournal)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/admin/access-requests/"+id+"/approve", lin, nil).Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/admin/admins/"+chen.ID, monitor, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/admin/admins/"+chen.ID+"/permissions", monitor, gin.H{"canManageJournal": true}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/admin/admins/missing", monitor, nil).Code)

	w = s.do(t, http.MethodDelete, "/api/admin/admins/"+linUser.ID, monitor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "none", decode[models.PrincipalResponse](t, w).Role)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/access-requests", lin, nil).Code)
}

func TestAnnouncementFanOut(t *testing.T) {
	s := newAPISuite(t)
	monitor, _ := s.login(t, "monitor@class26b.site")
	editor, _ := s.login(t, "editor@class26b.site")
	chen, _ := s.login(t, "chen@alumni.class26b.site")
	lin, _ := s.login(t, "lin@class26b.site")

	unread := func(token string) int {
		return decode[models.NotificationCountResponse](t, s.do(t, http.MethodGet, "/api/notifications/count", token, nil)).Unread
	}
	chenBefore, linBefore := unread(chen), unread(lin)

	body := models.AnnouncementRequest{Title: "Spring term", Content: "Journal windows reopen on Monday.", Audience: []string{"alumni"}}
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/admin/announcements", editor, body).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/admin/announcements", chen, body).Code)

	w := s.do(t, http.MethodPost, "/api/admin/announcements", monitor, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[models.AnnouncementResponse](t, w).Delivered)
	assert.Equal(t, chenBefore+1, unread(chen))
	assert.Equal(t, linBefore, unread(lin))

	bad := s.do(t, http.MethodPost, "/api/admin/announcements", monitor, models.AnnouncementRequest{Title: "x", Content: "y", Audience: []string{"parents"}})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "audience", decode[models.ErrorResponse](t, bad).Field)
}
