// internal/socket/hub.go
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Change hints; receivers re-read authoritative state
	MessageNotificationChanged  MessageType = "notification_changed"
	MessageAccessRequestChanged MessageType = "access_request_changed"

	// System messages
	MessageAck   MessageType = "ack"
	MessageError MessageType = "error"
	MessagePing  MessageType = "ping"
	MessagePong  MessageType = "pong"
)

// ErrTopicForbidden is returned when a client asks for a topic it does not own.
var ErrTopicForbidden = errors.New("topic not allowed")

// Message represents a WebSocket message
type Message struct {
	Type      MessageType            `json:"type"`
	Topic     string                 `json:"topic,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID     string
	UserID string
	Staff  bool
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte
	topics map[string]bool
	mu     sync.Mutex
}

// TopicMessage is an encoded message for every client on a topic.
type TopicMessage struct {
	Topic   string
	Message []byte
}

// Hub maintains the set of active clients and fans topic messages out to them.
type Hub struct {
	clients      map[*Client]bool
	userClients  map[string]map[*Client]bool
	topicClients map[string]map[*Client]bool

	unregister chan *Client
	publish    chan *TopicMessage
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		userClients:  make(map[string]map[*Client]bool),
		topicClients: make(map[string]map[*Client]bool),
		unregister:   make(chan *Client),
		publish:      make(chan *TopicMessage, 256),
		done:         make(chan struct{}),
		logger:       logger.Named("hub"),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Info("websocket hub stopped")
			return

		case client := <-h.unregister:
			h.unregisterClient(client)

		case tm := <-h.publish:
			h.broadcastToTopic(tm)

		case <-pingTicker.C:
			h.pingClients()
		}
	}
}

// CanJoinTopic is the server-side subscription filter. Users own their
// notification and access request topics; staff may also watch every request.
func CanJoinTopic(userID string, staff bool, topic string) bool {
	if topic == types.TopicAllAccessRequests {
		return staff
	}
	prefix, owner, ok := types.SplitTopic(topic)
	if !ok || owner != userID {
		return false
	}
	return prefix == types.TopicNotifications || prefix == types.TopicAccessRequests
}

// Register adds client synchronously so topic joins never race registration.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[client] = true
	if h.userClients[client.UserID] == nil {
		h.userClients[client.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.UserID][client] = true

	h.logger.Debug("client registered",
		zap.String("user_id", client.UserID),
		zap.String("client_id", client.ID),
		zap.Int("total_clients", len(h.clients)),
	)
	return true
}

// Unregister is called by the read pump when the connection ends.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	if clients, ok := h.userClients[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.userClients, client.UserID)
		}
	}

	client.mu.Lock()
	for topic := range client.topics {
		h.removeFromTopic(client, topic)
	}
	client.topics = make(map[string]bool)
	client.mu.Unlock()

	close(client.Send)
	h.logger.Debug("client disconnected",
		zap.String("user_id", client.UserID),
		zap.String("client_id", client.ID),
		zap.Int("total_clients", len(h.clients)),
	)
}

// removeFromTopic expects h.mu to be held.
func (h *Hub) removeFromTopic(client *Client, topic string) {
	if clients, ok := h.topicClients[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topicClients, topic)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregisterClient(c)
	}
}

func (h *Hub) broadcastToTopic(tm *TopicMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.topicClients[tm.Topic]
	if !ok {
		return
	}

	sent := 0
	for client := range clients {
		select {
		case client.Send <- tm.Message:
			sent++
		default:
			go h.Unregister(client)
		}
	}
	h.logger.Debug("topic broadcast", zap.String("topic", tm.Topic), zap.Int("sent", sent))
}

func (h *Hub) pingClients() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, _ := json.Marshal(Message{Type: MessagePing, Timestamp: time.Now()})
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			go h.Unregister(client)
		}
	}
}

// ============================================
// Topic membership
// ============================================

// Join subscribes client to topic after applying CanJoinTopic.
func (h *Hub) Join(client *Client, topic string) error {
	if !CanJoinTopic(client.UserID, client.Staff, topic) {
		h.logger.Warn("topic join refused", zap.String("user_id", client.UserID), zap.String("topic", topic))
		return ErrTopicForbidden
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return errors.New("client not registered")
	}

	client.mu.Lock()
	client.topics[topic] = true
	client.mu.Unlock()

	if h.topicClients[topic] == nil {
		h.topicClients[topic] = make(map[*Client]bool)
	}
	h.topicClients[topic][client] = true
	return nil
}

// Leave is a no-op for topics the client never joined.
func (h *Hub) Leave(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	delete(client.topics, topic)
	client.mu.Unlock()

	h.removeFromTopic(client, topic)
}

// ============================================
// Publishing
// ============================================

// Publish delivers a message to local clients on topic. Hints are dropped
// when the hub is saturated; subscribers reconcile on their next read.
func (h *Hub) Publish(topic string, msgType MessageType, payload map[string]interface{}) {
	data, err := json.Marshal(Message{
		Type:      msgType,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error("marshal message", zap.Error(err))
		return
	}

	select {
	case h.publish <- &TopicMessage{Topic: topic, Message: data}:
	default:
		h.logger.Warn("hub publish queue full, hint dropped", zap.String("topic", topic))
	}
}

// DisconnectUser drops every connection of userID, for example after sign-out.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.RLock()
	var conns []*websocket.Conn
	for client := range h.userClients[userID] {
		conns = append(conns, client.Conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
	return len(conns)
}

// ============================================
// Query Methods
// ============================================

func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.userClients[userID]
	return ok
}

// TopicClients returns the number of clients subscribed to topic.
func (h *Hub) TopicClients(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topicClients[topic])
}

func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendTo queues data for one client; closed clients are skipped.
func (h *Hub) sendTo(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}
