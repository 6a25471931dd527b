package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Role is the kind of client behind a connection.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleAttendee  Role = "attendee"
)

// MessageHandler receives client frames and disconnect notifications.
type MessageHandler interface {
	HandleMessage(c *Connection, message []byte)
	HandleDisconnect(c *Connection)
}

// Metrics is the slice of the metrics collector the gateway reports to.
type Metrics interface {
	ConnectionOpened(role string)
	ConnectionClosed(role string)
	AdmissionRejected(reason string)
	EventBroadcast(eventType string)
	BroadcastDropped()
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened(string)  {}
func (noopMetrics) ConnectionClosed(string)  {}
func (noopMetrics) AdmissionRejected(string) {}
func (noopMetrics) EventBroadcast(string)    {}
func (noopMetrics) BroadcastDropped()        {}

// ConnectionManager manages WebSocket connections and fans out server events
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// A single goroutine drains broadcastCh, so events reach every
	// connection in the order they were enqueued.
	broadcastCh chan BroadcastMessage

	handler  MessageHandler
	metrics  Metrics
	stopping atomic.Bool
	// done is closed once the broadcast loop has exited.
	done chan struct{}
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID          string
	Role        Role
	StudentID   string
	StudentName string
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager
	ConnectedAt time.Time

	sendMu sync.Mutex
	closed bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	PingInterval        time.Duration
	MaxMessageSize      int64
	ReadBufferSize      int
	WriteBufferSize     int
	SendBufferSize      int
	BroadcastBufferSize int
	CheckOrigin         func(r *http.Request) bool
}

// BroadcastMessage is one frame queued for delivery.
type BroadcastMessage struct {
	Label        string // event type, for logs and metrics
	Data         []byte
	ConnectionID string // Optional: if set, only send to this connection
	StudentID    string // Optional: if set, send to every attendee connection of this student
	CloseAfter   bool   // close the target connection once the frame is queued

	// join adds a connection to the fan-out set. Frames queued before it
	// never reach the connection.
	join *Connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:        10 * time.Second,
		ReadTimeout:         60 * time.Second,
		PingInterval:        30 * time.Second,
		MaxMessageSize:      4096,
		ReadBufferSize:      1024,
		WriteBufferSize:     1024,
		SendBufferSize:      256,
		BroadcastBufferSize: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, metrics Metrics) *ConnectionManager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBufferSize),
		metrics:     metrics,
		done:        make(chan struct{}),
	}
}

// SetHandler installs the receiver for client frames. Call before Start.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start processes queued frames until ctx is cancelled, then closes every
// connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer close(cm.done)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. The returned
// connection is not registered yet; call Register or Reject.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, role Role, studentID, studentName string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	return &Connection{
		ID:          uuid.New().String(),
		Role:        role,
		StudentID:   studentID,
		StudentName: studentName,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}, nil
}

// Register queues conn to join the fan-out set. Events queued after
// Register reach conn in order; events queued before it never do. It
// reports false, and closes conn, if the manager has stopped or the queue
// is full.
func (cm *ConnectionManager) Register(conn *Connection) bool {
	select {
	case <-cm.done:
		conn.Conn.Close()
		return false
	default:
	}

	select {
	case cm.broadcastCh <- BroadcastMessage{Label: "join", join: conn}:
		return true
	default:
		cm.metrics.BroadcastDropped()
		log.Warn().Str("connection_id", conn.ID).Msg("broadcast channel full, refusing connection")
		conn.Conn.Close()
		return false
	}
}

func (cm *ConnectionManager) addConnection(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn.ID] = conn
	total := len(cm.connections)
	cm.mu.Unlock()

	cm.metrics.ConnectionOpened(string(conn.Role))

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Str("student_id", conn.StudentID).
		Int("total_connections", total).
		Msg("WebSocket connection established")
}

// Reject writes event straight to an unregistered connection and closes it.
func (cm *ConnectionManager) Reject(conn *Connection, event *ServerEvent) {
	defer conn.Conn.Close()

	cm.metrics.AdmissionRejected(string(event.Type))

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal rejection event")
		return
	}

	deadline := time.Now().Add(cm.config.WriteTimeout)
	conn.Conn.SetWriteDeadline(deadline)
	if err := conn.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("connection_id", conn.ID).Msg("failed to write rejection")
		return
	}
	conn.Conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(event.Type)),
		deadline,
	)

	log.Info().
		Str("connection_id", conn.ID).
		Str("student_id", conn.StudentID).
		Str("reason", string(event.Type)).
		Msg("WebSocket connection rejected")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.ID]
	if exists {
		delete(cm.connections, conn.ID)
	}
	cm.mu.Unlock()

	if !exists {
		return
	}

	conn.closeSend()
	cm.metrics.ConnectionClosed(string(conn.Role))

	log.Info().
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Str("student_id", conn.StudentID).
		Msg("connection unregistered")

	if cm.handler != nil && !cm.stopping.Load() {
		cm.handler.HandleDisconnect(conn)
	}
}

// Broadcast sends an event to every registered connection.
func (cm *ConnectionManager) Broadcast(event *ServerEvent) {
	cm.enqueueEvent(event, "")
}

// SendTo sends an event to one connection.
func (cm *ConnectionManager) SendTo(connectionID string, event *ServerEvent) {
	cm.enqueueEvent(event, connectionID)
}

// CloseStudent sends an event to every attendee connection held by
// studentID and then closes them.
func (cm *ConnectionManager) CloseStudent(studentID string, event *ServerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event for broadcast")
		return
	}
	cm.enqueue(BroadcastMessage{
		Label:      string(event.Type),
		Data:       data,
		StudentID:  studentID,
		CloseAfter: true,
	})
}

// SendAck queues an acknowledgement behind any events already enqueued.
func (cm *ConnectionManager) SendAck(connectionID string, ack *AckMessage) {
	data, err := json.Marshal(ack)
	if err != nil {
		log.Error().Err(err).Str("ack_id", ack.ID).Msg("failed to marshal ack")
		return
	}
	cm.enqueue(BroadcastMessage{Label: string(EventTypeAck), Data: data, ConnectionID: connectionID})
}

func (cm *ConnectionManager) enqueueEvent(event *ServerEvent, connectionID string) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event for broadcast")
		return
	}
	cm.enqueue(BroadcastMessage{
		Label:        string(event.Type),
		Data:         data,
		ConnectionID: connectionID,
	})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
		cm.metrics.EventBroadcast(message.Label)
	default:
		cm.metrics.BroadcastDropped()
		log.Warn().
			Str("event_type", message.Label).
			Str("connection_id", message.ConnectionID).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	if message.join != nil {
		cm.addConnection(message.join)
		return
	}

	cm.mu.RLock()
	var targets []*Connection
	switch {
	case message.ConnectionID != "":
		if conn, ok := cm.connections[message.ConnectionID]; ok {
			targets = append(targets, conn)
		}
	case message.StudentID != "":
		for _, conn := range cm.connections {
			if conn.Role == RoleAttendee && conn.StudentID == message.StudentID {
				targets = append(targets, conn)
			}
		}
	default:
		targets = make([]*Connection, 0, len(cm.connections))
		for _, conn := range cm.connections {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		if !conn.trySend(message.Data) {
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("student_id", conn.StudentID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
			continue
		}
		if message.CloseAfter {
			// Closing Send lets writePump flush the frame before the close frame.
			cm.unregisterConnection(conn)
		}
	}

	log.Debug().
		Str("event_type", message.Label).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionStats summarises the open connections.
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	Presenters       int `json:"presenters"`
	Attendees        int `json:"attendees"`
	QueuedMessages   int `json:"queued_messages"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		QueuedMessages:   len(cm.broadcastCh),
	}
	for _, conn := range cm.connections {
		if conn.Role == RolePresenter {
			stats.Presenters++
		} else {
			stats.Attendees++
		}
	}
	return stats
}

func (cm *ConnectionManager) closeAll() {
	cm.stopping.Store(true)

	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// trySend queues data without blocking. It reports false when the buffer
// is full; a send to an already closed connection is silently dropped.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
