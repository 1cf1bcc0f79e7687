package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"go.uber.org/zap"
)

// RefreshReason says what triggered a refresh.
type RefreshReason string

const (
	ReasonInitial   RefreshReason = "initial"
	ReasonConnect   RefreshReason = "connect"
	ReasonPush      RefreshReason = "push"
	ReasonReconnect RefreshReason = "reconnect"
	ReasonAction    RefreshReason = "action"
	ReasonManual    RefreshReason = "manual"
)

// Source is the authoritative read a view model refreshes from.
type Source interface {
	FetchView(ctx context.Context) (*models.ViewResponse, error)
}

// ViewState is what the presentation layer renders.
type ViewState struct {
	Status         string
	UnreadCount    int
	RequestHistory []models.AccessRequestResponse
	LastReason     RefreshReason
	RefreshedAt    time.Time
	Err            error
}

// ViewModel keeps one member's dashboard in sync. Pushed hints and reconnects
// both go through Refresh; hint payloads are never applied directly.
type ViewModel struct {
	source Source
	client *Client
	userID string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	refreshMu sync.Mutex

	mu        sync.RWMutex
	state     ViewState
	listeners []func(ViewState)
	handles   []Handle
}

func NewViewModel(source Source, client *Client, userID string, logger *zap.Logger) *ViewModel {
	return &ViewModel{
		source: source,
		client: client,
		userID: userID,
		logger: logger.Named("view"),
	}
}

// Start subscribes to the member's own topics and then hydrates the view.
// Every confirmed topic join triggers another read, so changes made before
// the transport came up are picked up as soon as it does.
func (v *ViewModel) Start(ctx context.Context) error {
	v.ctx, v.cancel = context.WithCancel(ctx)

	if v.client != nil {
		for _, topic := range []string{types.NotificationTopic(v.userID), types.AccessRequestTopic(v.userID)} {
			h := v.client.Subscribe(Subscription{
				Topic: topic,
				OnEvent: func(Event) {
					v.Refresh(v.ctx, ReasonPush)
				},
				OnJoined: func(rejoin bool) {
					reason := ReasonConnect
					if rejoin {
						reason = ReasonReconnect
					}
					v.Refresh(v.ctx, reason)
				},
			})
			v.mu.Lock()
			v.handles = append(v.handles, h)
			v.mu.Unlock()
		}
	}
	return v.Refresh(v.ctx, ReasonInitial)
}

// Refresh re-reads the authoritative view. Concurrent calls are serialised so
// an older read never overwrites a newer one.
func (v *ViewModel) Refresh(ctx context.Context, reason RefreshReason) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	view, err := v.source.FetchView(ctx)

	v.mu.Lock()
	if err != nil {
		v.state.Err = err
		v.state.LastReason = reason
		v.logger.Warn("view refresh failed", zap.String("reason", string(reason)), zap.Error(err))
	} else {
		v.state = ViewState{
			Status:         view.Status,
			UnreadCount:    view.UnreadCount,
			RequestHistory: view.RequestHistory,
			LastReason:     reason,
			RefreshedAt:    time.Now(),
		}
	}
	state := v.state
	listeners := append([]func(ViewState){}, v.listeners...)
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
	return err
}

func (v *ViewModel) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// OnChange registers fn to run after every refresh.
func (v *ViewModel) OnChange(fn func(ViewState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Close releases the view's subscriptions. Safe to call more than once.
func (v *ViewModel) Close() {
	v.mu.Lock()
	handles := v.handles
	v.handles = nil
	v.mu.Unlock()

	if v.cancel != nil {
		v.cancel()
	}
	for _, h := range handles {
		v.client.Unsubscribe(h)
	}
}
