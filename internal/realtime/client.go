// Package realtime is the client side of the change-hint channel. It keeps
// topic subscriptions alive across reconnects and runs every callback on a
// single dispatch goroutine.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is one change hint. It tells the receiver to re-read, never what changed.
type Event struct {
	Type    string                 `json:"type"`
	Topic   string                 `json:"topic"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Handle identifies a subscription. The zero Handle is never issued.
type Handle uint64

// Subscription describes what to run for a topic.
type Subscription struct {
	Topic   string
	OnEvent func(Event)
	// OnJoined runs each time the server confirms the topic join, on the first
	// connection and after every reconnect. Hints sent before the join are
	// lost, so this must re-read state. rejoin is false for the first join.
	OnJoined func(rejoin bool)
}

type Options struct {
	// URL of the websocket endpoint, for example ws://host/api/ws
	URL string
	// Token is called on every dial so refreshed tokens are picked up.
	Token      func() string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

type subscription struct {
	Subscription
	active bool
	joined bool
}

type Client struct {
	opts   Options
	logger *zap.Logger

	// topicMu orders ref-count changes with the join and leave frames they cause.
	topicMu sync.Mutex

	mu        sync.Mutex
	nextID    Handle
	subs      map[Handle]*subscription
	topicRefs map[string]int
	conn      *websocket.Conn
	connects  int

	writeMu sync.Mutex

	dispatch  chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	c := &Client{
		opts:      opts,
		logger:    logger.Named("realtime"),
		subs:      make(map[Handle]*subscription),
		topicRefs: make(map[string]int),
		dispatch:  make(chan func(), 256),
		done:      make(chan struct{}),
	}
	go c.dispatchLoop()
	return c
}

func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.dispatch:
			fn()
		}
	}
}

func (c *Client) enqueue(fn func()) {
	select {
	case c.dispatch <- fn:
	case <-c.done:
	}
}

// Subscribe registers sub and joins its topic if this is the first
// subscription for it on the live connection.
func (c *Client) Subscribe(sub Subscription) Handle {
	c.topicMu.Lock()
	defer c.topicMu.Unlock()

	c.mu.Lock()
	c.nextID++
	h := c.nextID
	c.subs[h] = &subscription{Subscription: sub, active: true}
	c.topicRefs[sub.Topic]++
	first := c.topicRefs[sub.Topic] == 1
	conn := c.conn
	c.mu.Unlock()

	if first && conn != nil {
		c.send(conn, "join", sub.Topic)
	}
	return h
}

// Unsubscribe releases h. Calling it again, or with an unknown handle, does nothing.
func (c *Client) Unsubscribe(h Handle) {
	c.topicMu.Lock()
	defer c.topicMu.Unlock()

	c.mu.Lock()
	sub, ok := c.subs[h]
	if !ok || !sub.active {
		c.mu.Unlock()
		return
	}
	sub.active = false
	delete(c.subs, h)
	c.topicRefs[sub.Topic]--
	last := c.topicRefs[sub.Topic] == 0
	if last {
		delete(c.topicRefs, sub.Topic)
	}
	conn := c.conn
	c.mu.Unlock()

	if last && conn != nil {
		c.send(conn, "leave", sub.Topic)
	}
}

// Connected reports whether a transport is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) send(conn *websocket.Conn, action, topic string) {
	data, _ := json.Marshal(map[string]string{"action": action, "topic": topic})

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("send failed", zap.String("action", action), zap.String("topic", topic), zap.Error(err))
	}
}

// Run keeps the connection up until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			backoff = c.opts.MinBackoff
			c.serve(ctx, conn)
		} else {
			c.logger.Debug("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-time.After(backoff):
		}
		if err != nil {
			backoff *= 2
			if backoff > c.opts.MaxBackoff {
				backoff = c.opts.MaxBackoff
			}
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.opts.Token != nil {
		if token := c.opts.Token(); token != "" {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
		}
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// serve owns one connection: join topics, then read until the transport
// fails. Join hooks fire as the server acknowledges each topic.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.topicMu.Lock()
	c.mu.Lock()
	c.conn = conn
	c.connects++
	reconnected := c.connects > 1
	topics := make([]string, 0, len(c.topicRefs))
	for t := range c.topicRefs {
		topics = append(topics, t)
	}
	c.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		case <-stop:
			return
		}
		conn.Close()
	}()

	for _, t := range topics {
		c.send(conn, "join", t)
	}
	c.topicMu.Unlock()
	if reconnected {
		c.logger.Info("realtime reconnected", zap.Int("topics", len(topics)))
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("connection lost", zap.Error(err))
			}
			break
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("malformed event", zap.Error(err))
			continue
		}
		c.route(ev)
	}

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) route(ev Event) {
	switch ev.Type {
	case "ack":
		if action, _ := ev.Payload["action"].(string); action == "joined" && ev.Topic != "" {
			c.fireJoined(ev.Topic)
		}
		return
	case "ping", "pong":
		return
	case "error":
		c.logger.Warn("server refused request", zap.String("topic", ev.Topic), zap.Any("payload", ev.Payload))
		return
	}
	if ev.Topic == "" {
		return
	}

	c.mu.Lock()
	var targets []*subscription
	for _, s := range c.subs {
		if s.Topic == ev.Topic && s.OnEvent != nil {
			targets = append(targets, s)
		}
	}
	c.mu.Unlock()

	for _, s := range targets {
		s := s
		c.enqueue(func() {
			if c.isActive(s) {
				s.OnEvent(ev)
			}
		})
	}
}

func (c *Client) fireJoined(topic string) {
	type target struct {
		sub    *subscription
		rejoin bool
	}
	c.mu.Lock()
	var targets []target
	for _, s := range c.subs {
		if s.Topic != topic || !s.active {
			continue
		}
		rejoin := s.joined
		s.joined = true
		if s.OnJoined != nil {
			targets = append(targets, target{sub: s, rejoin: rejoin})
		}
	}
	c.mu.Unlock()

	for _, t := range targets {
		t := t
		c.enqueue(func() {
			if c.isActive(t.sub) {
				t.sub.OnJoined(t.rejoin)
			}
		})
	}
}

func (c *Client) isActive(s *subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.active
}

// Close drops the connection and stops the dispatcher. Pending callbacks are discarded.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
}
