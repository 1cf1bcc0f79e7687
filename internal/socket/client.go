// internal/socket/client.go
package socket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket connection constants
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (4KB)
	maxMessageSize int64 = 4096
)

// ClientMessage represents an incoming message from a client
type ClientMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

func NewClient(hub *Hub, userID string, staff bool, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Staff:  staff,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan []byte, 256),
		topics: make(map[string]bool),
	}
}

// Topics returns the topics the client is currently joined to.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	return topics
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read error", zap.String("user_id", c.UserID), zap.Error(err))
			}
			break
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame keeps client decoding trivial.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.Hub.logger.Debug("unparseable client message", zap.String("user_id", c.UserID), zap.Error(err))
		c.reply(MessageError, "", map[string]interface{}{"error": "malformed message"})
		return
	}

	switch msg.Action {
	case "join":
		if err := c.Hub.Join(c, msg.Topic); err != nil {
			c.reply(MessageError, msg.Topic, map[string]interface{}{
				"action": "join",
				"error":  err.Error(),
			})
			return
		}
		c.reply(MessageAck, msg.Topic, map[string]interface{}{"action": "joined"})

	case "leave":
		c.Hub.Leave(c, msg.Topic)
		c.reply(MessageAck, msg.Topic, map[string]interface{}{"action": "left"})

	case "ping":
		c.reply(MessagePong, "", map[string]interface{}{"time": time.Now().Unix()})

	case "pong":

	default:
		c.reply(MessageError, "", map[string]interface{}{"error": "unknown action " + msg.Action})
	}
}

func (c *Client) reply(msgType MessageType, topic string, payload map[string]interface{}) {
	data, _ := json.Marshal(Message{
		Type:      msgType,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if !c.Hub.sendTo(c, data) {
		c.Hub.logger.Debug("reply dropped", zap.String("user_id", c.UserID), zap.String("type", string(msgType)))
	}
}
