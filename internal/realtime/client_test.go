package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUnsubscribeIsIdempotent(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/api/ws"}, zap.NewNop())
	defer c.Close()

	a := c.Subscribe(Subscription{Topic: "notifications:u1"})
	b := c.Subscribe(Subscription{Topic: "notifications:u1"})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, c.topicRefs["notifications:u1"])

	c.Unsubscribe(a)
	c.Unsubscribe(a)
	c.Unsubscribe(0)
	c.Unsubscribe(Handle(999))
	assert.Equal(t, 1, c.topicRefs["notifications:u1"])

	c.Unsubscribe(b)
	_, ok := c.topicRefs["notifications:u1"]
	assert.False(t, ok)
	assert.Empty(t, c.subs)
}

func TestRouteSkipsInactiveAndControlMessages(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/api/ws"}, zap.NewNop())
	defer c.Close()

	got := make(chan Event, 4)
	h := c.Subscribe(Subscription{Topic: "notifications:u1", OnEvent: func(ev Event) { got <- ev }})

	c.route(Event{Type: "ack", Topic: "notifications:u1"})
	c.route(Event{Type: "notification_changed", Topic: "notifications:u2"})
	c.route(Event{Type: "notification_changed", Topic: "notifications:u1"})

	ev := <-got
	assert.Equal(t, "notification_changed", ev.Type)

	c.Unsubscribe(h)
	c.route(Event{Type: "notification_changed", Topic: "notifications:u1"})
	done := make(chan struct{})
	c.enqueue(func() { close(done) })
	<-done
	assert.Empty(t, got)
}

func TestJoinAckFiresJoinedHooks(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/api/ws"}, zap.NewNop())
	defer c.Close()

	got := make(chan bool, 4)
	c.Subscribe(Subscription{Topic: "notifications:u1", OnJoined: func(rejoin bool) { got <- rejoin }})
	h := c.Subscribe(Subscription{Topic: "notifications:u2", OnJoined: func(rejoin bool) { got <- rejoin }})

	c.route(Event{Type: "ack", Topic: "notifications:u1", Payload: map[string]interface{}{"action": "left"}})
	c.route(Event{Type: "ack", Topic: "notifications:u1", Payload: map[string]interface{}{"action": "joined"}})
	c.route(Event{Type: "ack", Topic: "notifications:u1", Payload: map[string]interface{}{"action": "joined"}})
	c.Unsubscribe(h)
	c.route(Event{Type: "ack", Topic: "notifications:u2", Payload: map[string]interface{}{"action": "joined"}})

	done := make(chan struct{})
	c.enqueue(func() { close(done) })
	<-done
	require.Len(t, got, 2)
	assert.False(t, <-got, "first join")
	assert.True(t, <-got, "second join")
}

// frameRecorder is a websocket endpoint that records every client frame in order.
type frameRecorder struct {
	mu     sync.Mutex
	frames []map[string]string
}

func (r *frameRecorder) serve(w http.ResponseWriter, req *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]string
		if json.Unmarshal(data, &frame) == nil {
			r.mu.Lock()
			r.frames = append(r.frames, frame)
			r.mu.Unlock()
		}
	}
}

func (r *frameRecorder) actions(topic string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.frames {
		if f["topic"] == topic {
			out = append(out, f["action"])
		}
	}
	return out
}

func TestJoinLeaveFramesFollowReferenceCount(t *testing.T) {
	rec := &frameRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.serve))
	defer srv.Close()

	c := NewClient(Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, zap.NewNop())
	defer c.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	require.Eventually(t, c.Connected, 3*time.Second, 10*time.Millisecond)

	const topic = "notifications:u1"
	h := c.Subscribe(Subscription{Topic: topic})
	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		var next Handle
		wg.Add(2)
		go func(old Handle) {
			defer wg.Done()
			c.Unsubscribe(old)
		}(h)
		go func() {
			defer wg.Done()
			next = c.Subscribe(Subscription{Topic: topic})
		}()
		wg.Wait()
		h = next
	}
	c.Unsubscribe(h)
	c.Subscribe(Subscription{Topic: "notifications:marker"})
	require.Eventually(t, func() bool { return len(rec.actions("notifications:marker")) == 1 }, 3*time.Second, 10*time.Millisecond)

	actions := rec.actions(topic)
	require.NotEmpty(t, actions)
	for i, action := range actions {
		want := "join"
		if i%2 == 1 {
			want = "leave"
		}
		require.Equal(t, want, action, "frame %d", i)
	}
	assert.Equal(t, "leave", actions[len(actions)-1])
}

func TestHTTPSourceEscapesIDsAndReportsTransportFailures(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","status":"approved"}`))
	}))

	src := NewHTTPSource(srv.URL, time.Second)
	_, err := src.ApproveRequest(context.Background(), "../notifications/read-all")
	require.NoError(t, err)
	_, err = src.RejectRequest(context.Background(), "a b")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/api/admin/access-requests/..%2Fnotifications%2Fread-all/approve",
		"/api/admin/access-requests/a%20b/reject",
	}, paths)

	srv.Close()
	_, err = src.FetchView(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrNetwork)
	assert.NotErrorIs(t, err, sentinel.ErrStorage)
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, sentinel.ErrInvalidInput},
		{http.StatusUnauthorized, sentinel.ErrAuth},
		{http.StatusForbidden, sentinel.ErrPermissionDenied},
		{http.StatusNotFound, sentinel.ErrNotFound},
		{http.StatusConflict, sentinel.ErrConflict},
		{http.StatusServiceUnavailable, sentinel.ErrStorage},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, statusError(tt.status, nil), tt.want, http.StatusText(tt.status))
	}

	err := statusError(http.StatusBadRequest, []byte(`{"error":"reason is required","field":"reason"}`))
	var verr *sentinel.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Field)
}
