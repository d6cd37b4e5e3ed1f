package api

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/eternisai/leadgen-assistant/internal/auth"
	"github.com/eternisai/leadgen-assistant/internal/generation"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

const (
	// MaxStreamsPerUser bounds concurrent session streams of one user.
	MaxStreamsPerUser = 5

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Stream message types
const (
	StreamMessageSnapshot = "snapshot"
	StreamMessageClosed   = "closed"
)

// StreamMessage is one frame of GET /api/sessions/:id/stream.
type StreamMessage struct {
	Type     string               `json:"type"`
	Snapshot *generation.Snapshot `json:"snapshot,omitempty"`
}

// StreamHub tracks the open session streams.
type StreamHub struct {
	// connections maps sessionID -> set of WebSocket connections
	connections map[string]map[*websocket.Conn]bool

	// userConnections maps userID -> set of WebSocket connections (for limiting)
	userConnections map[string]map[*websocket.Conn]bool

	connToSession map[*websocket.Conn]string
	connToUser    map[*websocket.Conn]string

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewStreamHub creates an empty hub.
func NewStreamHub(logger *logger.Logger) *StreamHub {
	return &StreamHub{
		connections:     make(map[string]map[*websocket.Conn]bool),
		userConnections: make(map[string]map[*websocket.Conn]bool),
		connToSession:   make(map[*websocket.Conn]string),
		connToUser:      make(map[*websocket.Conn]string),
		logger:          logger.WithComponent("stream_hub"),
	}
}

// TryRegister records a connection streaming sessionID for userID unless the
// user already holds limit streams. limit <= 0 disables the check.
func (m *StreamHub) TryRegister(sessionID, userID string, conn *websocket.Conn, limit int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > 0 && len(m.userConnections[userID]) >= limit {
		return false
	}

	if m.connections[sessionID] == nil {
		m.connections[sessionID] = make(map[*websocket.Conn]bool)
	}
	m.connections[sessionID][conn] = true

	if m.userConnections[userID] == nil {
		m.userConnections[userID] = make(map[*websocket.Conn]bool)
	}
	m.userConnections[userID][conn] = true

	m.connToSession[conn] = sessionID
	m.connToUser[conn] = userID

	m.logger.Debug("stream registered",
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
		slog.Int("session_streams", len(m.connections[sessionID])),
		slog.Int("user_streams", len(m.userConnections[userID])))
	return true
}

// Unregister forgets a connection.
func (m *StreamHub) Unregister(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, ok := m.connToSession[conn]
	if !ok {
		return
	}
	userID := m.connToUser[conn]

	if sessionConns, ok := m.connections[sessionID]; ok {
		delete(sessionConns, conn)
		if len(sessionConns) == 0 {
			delete(m.connections, sessionID)
		}
	}
	if userConns, ok := m.userConnections[userID]; ok {
		delete(userConns, conn)
		if len(userConns) == 0 {
			delete(m.userConnections, userID)
		}
	}
	delete(m.connToSession, conn)
	delete(m.connToUser, conn)

	m.logger.Debug("stream unregistered",
		slog.String("session_id", sessionID),
		slog.String("user_id", userID))
}

// UserConnectionCount returns the open streams of userID.
func (m *StreamHub) UserConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userConnections[userID])
}

// ConnectionCount returns all open streams.
func (m *StreamHub) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connToSession)
}

// CloseAll sends a going-away close frame to every stream and closes it.
// http.Server.Shutdown does not touch hijacked connections.
func (m *StreamHub) CloseAll() {
	m.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(m.connToSession))
	for conn := range m.connToSession {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		conn.Close()
	}
	m.logger.Info("closed session streams", slog.Int("count", len(conns)))
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin)
		},
	}
}

// StreamSession handles WebSocket GET /api/sessions/:id/stream
//
// The first frame is the current snapshot; every change of the session
// produces another. The stream ends when the session is deleted.
func (h *Handler) StreamSession(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}
	userID, _ := auth.GetUserID(c)
	log := h.logger.WithContext(c.Request.Context()).WithComponent("session_stream")

	if count := h.streams.UserConnectionCount(userID); count >= MaxStreamsPerUser {
		log.Warn("too many concurrent streams", slog.Int("count", count))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Maximum concurrent streams exceeded"})
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// The count above is only a fast path; concurrent upgrades are settled here.
	if !h.streams.TryRegister(s.ID(), userID, conn, MaxStreamsPerUser) {
		log.Warn("too many concurrent streams", slog.Int("max", MaxStreamsPerUser))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Maximum concurrent streams exceeded"),
			time.Now().Add(writeTimeout))
		return
	}
	defer h.streams.Unregister(conn)

	updates, cancel := s.Subscribe()
	defer cancel()

	// Read messages only to detect disconnection.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Debug("stream closed by client")
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteJSON(StreamMessage{Type: StreamMessageClosed})
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(StreamMessage{Type: StreamMessageSnapshot, Snapshot: &snap}); err != nil {
				log.Warn("failed to write snapshot", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warn("failed to send ping", slog.String("error", err.Error()))
				return
			}

		case <-done:
			return
		}
	}
}
