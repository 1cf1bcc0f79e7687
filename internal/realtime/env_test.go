package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/api"
	"github.com/baiweichihu/26b-website-sub001/internal/config"
	"github.com/baiweichihu/26b-website-sub001/internal/notification"
	"github.com/baiweichihu/26b-website-sub001/internal/realtime"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/repository/memory"
	"github.com/baiweichihu/26b-website-sub001/internal/seed"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/socket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEnv is a full API server on memory storage whose websocket endpoint
// can be taken offline.
type testEnv struct {
	url      string
	wsURL    string
	hub      *socket.Hub
	repos    *repository.Repositories
	services *service.Services
	blocked  atomic.Bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{
		StorageDriver:   config.StorageDriverMemory,
		JWTSecret:       "realtime-test",
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

	e := &testEnv{hub: hub, repos: repos, services: services}
	router := api.NewRouter(api.RouterDeps{Config: cfg, Services: services, Hub: hub, Logger: logger})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.blocked.Load() && r.URL.Path == "/api/ws" {
			http.Error(w, "offline", http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	e.url = srv.URL
	e.wsURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	return e
}

func (e *testEnv) profileID(t *testing.T, email string) string {
	t.Helper()
	p, err := e.repos.ProfileRepo.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.ID
}

// login returns a signed-in source and the member's principal snapshot.
func (e *testEnv) login(t *testing.T, email string) (*realtime.HTTPSource, *realtime.PrincipalSnapshot) {
	t.Helper()
	src := realtime.NewHTTPSource(e.url, 5*time.Second)
	resp, err := src.Login(context.Background(), email, seed.DefaultPassword)
	require.NoError(t, err)
	return src, realtime.SnapshotFromResponse(&resp.User)
}

func (e *testEnv) connect(t *testing.T, src *realtime.HTTPSource) *realtime.Client {
	t.Helper()
	client := realtime.NewClient(realtime.Options{
		URL:        e.wsURL,
		Token:      src.Token,
		MinBackoff: 20 * time.Millisecond,
		MaxBackoff: 100 * time.Millisecond,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)
	t.Cleanup(func() {
		cancel()
		client.Close()
	})
	return client
}
