package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// Stage is a progress checkpoint in the moderation pipeline.
type Stage string

const (
	StagePending     Stage = "PENDING"
	StageQueued      Stage = "QUEUED"
	StageProcessing  Stage = "PROCESSING"
	StageAICompleted Stage = "AI_COMPLETED"
	StageDone        Stage = "DONE"
	StageError       Stage = "ERROR"
)

// Progress percentage reported for each stage.
const (
	ProgressPending     = 10
	ProgressQueued      = 30
	ProgressProcessing  = 60
	ProgressAICompleted = 90
	ProgressDone        = 100
)

// Message is a progress update pushed to sockets watching a content id.
// Besides contentId, stage and timestamp, exactly the fields relevant to the
// stage are populated: progress for checkpoints, status for DONE, error for
// ERROR.
type Message struct {
	ContentID string    `json:"contentId"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans moderation progress out to WebSocket clients. Each client watches
// exactly one content id. Delivery is best effort: the pipeline never blocks
// or fails because nobody is listening.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	mutex      sync.RWMutex
}

// Client is one WebSocket connection watching a content id.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	contentID string
	logger    logging.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": count,
				"content_id":   client.contentID,
			}).Info("Progress client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Progress client disconnected")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) broadcastMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal progress message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if client.contentID != msg.ContentID {
			continue
		}
		select {
		case client.send <- message:
		default:
			// Slow consumer, drop the connection rather than the pipeline.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// SendProgress pushes a stage checkpoint for a content id.
func (h *Hub) SendProgress(contentID string, stage Stage, progress int) {
	h.publish(Message{
		ContentID: contentID,
		Stage:     stage,
		Progress:  progress,
	})
}

// SendCompleted pushes the terminal DONE update carrying the verdict.
func (h *Hub) SendCompleted(contentID, label string) {
	h.publish(Message{
		ContentID: contentID,
		Stage:     StageDone,
		Progress:  ProgressDone,
		Status:    label,
	})
}

// SendError pushes a terminal ERROR update.
func (h *Hub) SendError(contentID, errMsg string) {
	h.publish(Message{
		ContentID: contentID,
		Stage:     StageError,
		Error:     errMsg,
	})
}

func (h *Hub) publish(msg Message) {
	msg.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal progress message")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.WithField("content_id", msg.ContentID).Warn("Progress channel full, dropping message")
	}
}

// ConnectionCount returns the number of connected progress clients.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and subscribes the socket to one content id.
func (h *Hub) ServeWS(contentID string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		contentID: contentID,
		logger:    h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// readPump drains the connection to process control frames. Clients do not
// send application messages; the watched content id is fixed at connect time.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
